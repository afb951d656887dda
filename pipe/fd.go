// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipe

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	// maxDatagramSize bounds one frame. Clients split input into
	// writeChunkSize pieces, well under it.
	maxDatagramSize = 64 * 1024

	// maxPassedFDs is how many descriptors one datagram's ancillary
	// buffer has room for. Only the first is used; the rest are
	// closed.
	maxPassedFDs = 4
)

// datagram is one received frame with the descriptors that came with
// it and the sender's bound path, which is empty for an unbound
// socket.
type datagram struct {
	data []byte
	fds  []int
	from string
}

// receiver reads datagrams with ancillary data from a socket.
type receiver struct {
	conn   *net.UnixConn
	buffer []byte
	oob    []byte
}

func newReceiver(conn *net.UnixConn) *receiver {
	return &receiver{
		conn:   conn,
		buffer: make([]byte, maxDatagramSize),
		oob:    make([]byte, unix.CmsgSpace(maxPassedFDs*4)),
	}
}

// receive reads the next datagram. Descriptors in a truncated control
// message are closed and the datagram is reported without them.
func (r *receiver) receive() (datagram, error) {
	n, oobn, flags, address, err := r.conn.ReadMsgUnix(r.buffer, r.oob)
	if err != nil {
		return datagram{}, err
	}
	received := datagram{data: append([]byte(nil), r.buffer[:n]...)}
	if address != nil {
		received.from = address.Name
	}
	if oobn > 0 {
		fds, err := parseRights(r.oob[:oobn])
		if err != nil || flags&unix.MSG_CTRUNC != 0 {
			closeFDs(fds)
			fds = nil
		}
		received.fds = fds
	}
	return received, nil
}

// parseRights extracts every descriptor from SCM_RIGHTS messages in
// oob.
func parseRights(oob []byte) ([]int, error) {
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing control messages: %w", err)
	}
	var fds []int
	for index := range messages {
		if messages[index].Header.Level != unix.SOL_SOCKET || messages[index].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		rights, err := unix.ParseUnixRights(&messages[index])
		if err != nil {
			return fds, fmt.Errorf("parsing SCM_RIGHTS: %w", err)
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

// sendTo writes data to the socket at path, passing fd when it is not
// negative.
func sendTo(conn *net.UnixConn, path string, data []byte, fd int) error {
	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}
	_, _, err := conn.WriteMsgUnix(data, oob, &net.UnixAddr{Name: path, Net: "unixgram"})
	return err
}

// isPeerGone reports whether a send failed because nothing is bound
// at the destination path any more.
func isPeerGone(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ENOENT)
}
