// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"io"
	"net"
	"sync"
)

// Splice copies bytes bidirectionally between a and b until either
// direction hits EOF or fails, then closes both halves of the copy. The
// result is that of the direction that finished first: nil on EOF, its
// error otherwise; the error the other direction then gets from the close
// is not reported. This follows the two-goroutine, shared-result-channel
// shape used by SOCKS relay implementations in this corpus rather than a
// generic io.Copy-in-errgroup.
func Splice(a, b net.Conn) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	var once sync.Once

	copyHalf := func(dst, src net.Conn) {
		defer wg.Done()
		_, err := io.Copy(dst, src)
		errs <- err
		// The first direction to finish closes both halves so the other,
		// still-blocked direction unblocks immediately instead of waiting
		// for its own peer to close.
		once.Do(func() {
			a.Close()
			b.Close()
		})
	}

	wg.Add(2)
	go copyHalf(b, a)
	go copyHalf(a, b)
	wg.Wait()
	close(errs)

	// The channel is FIFO and each direction sends before closing, so the
	// first value is the outcome of the direction that ended the splice.
	return <-errs
}
