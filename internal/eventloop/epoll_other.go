//go:build !linux

package eventloop

import bankerr "atmbank/internal/errors"

func newEpollPoller(string) (Poller, error) {
	return nil, bankerr.ErrUnsupported
}
