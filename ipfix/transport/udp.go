// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"fmt"
	"net"

	"ipfixgen/ipfix/session"
)

type udpTransport struct {
	d    Dependencies
	conn net.Conn
}

func newUDP(address string, srcPort uint16, dependencies Dependencies) (*udpTransport, error) {
	dialer := net.Dialer{}
	if srcPort > 0 {
		dialer.LocalAddr = &net.UDPAddr{Port: int(srcPort)}
	}
	conn, err := dialer.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot create socket to %q: %w", address, err)
	}
	return &udpTransport{
		d:    dependencies,
		conn: conn,
	}, nil
}

func (t *udpTransport) Type() Kind {
	return KindUDP
}

// Send sends the payload as one datagram. Delivery is not confirmed:
// the session is successful when the datagram has been handed to the
// kernel.
func (t *udpTransport) Send(_ context.Context, packet Packet) (session.Record, error) {
	record := session.Record{
		Name: packet.Name,
		Time: t.d.Clock.Now(),
	}
	n, err := t.conn.Write(packet.Payload)
	if err != nil {
		record.Status = session.StatusFailed
		record.TransportStatus = err.Error()
		return record, fmt.Errorf("cannot send %q: %w: %w", packet.Name, ErrTransport, err)
	}
	record.Status = session.StatusSuccess
	record.TransportStatus = "sent"
	record.BytesUploaded = n
	record.TempRecordsUploaded = packet.TemplateRecords
	record.DataRecordsUploaded = packet.DataRecords
	return record, nil
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}
