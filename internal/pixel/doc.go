// Package pixel implements the CPU pixel primitives behind the software
// draw unit and the emulated hardware engines.
//
// All images are premultiplied *image.RGBA in absolute coordinates;
// every primitive writes only inside the clip rectangle it is given.
package pixel
