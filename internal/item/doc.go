// Package item defines the decodable media items the frame cache works on and
// the validity-checked handles through which every other package reaches them.
//
// Items are owned by the playlist. The cache only ever holds a Handle; a handle
// is released exactly once, after which Get and Use report the item as gone
// instead of handing out a half-destroyed decoder. Use holds a read guard for
// the duration of a decode so Release waits for the in-flight frame to finish.
package item
