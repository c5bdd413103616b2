// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"ipfixgen/common/helpers"
	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/session"
)

func TestParseDestination(t *testing.T) {
	cases := []struct {
		Pos     helpers.Pos
		Dst     string
		Kind    Kind
		Address string
		IPv6    bool
		Error   bool
	}{
		{Pos: helpers.Mark(), Dst: "127.0.0.1:4739", Kind: KindUDP, Address: "127.0.0.1:4739"},
		{Pos: helpers.Mark(), Dst: "[2001:db8::1]:4739", Kind: KindUDP, Address: "[2001:db8::1]:4739", IPv6: true},
		{Pos: helpers.Mark(), Dst: "collector.example.com:2055", Kind: KindUDP, Address: "collector.example.com:2055"},
		{Pos: helpers.Mark(), Dst: "udp://127.0.0.1:4739", Kind: KindUDP, Address: "127.0.0.1:4739"},
		{Pos: helpers.Mark(), Dst: "udp://[::1]:4739", Kind: KindUDP, Address: "[::1]:4739", IPv6: true},
		{Pos: helpers.Mark(), Dst: "http://127.0.0.1:8080/ipfix", Kind: KindHTTP, Address: "http://127.0.0.1:8080/ipfix"},
		{Pos: helpers.Mark(), Dst: "https://[2001:db8::1]/ipfix", Kind: KindHTTP, Address: "https://[2001:db8::1]/ipfix", IPv6: true},
		{Pos: helpers.Mark(), Dst: "file:///tmp/ipfix.bin", Kind: KindFile, Address: "/tmp/ipfix.bin"},
		{Pos: helpers.Mark(), Dst: "file://out/ipfix.bin", Kind: KindFile, Address: "out/ipfix.bin"},
		{Pos: helpers.Mark(), Dst: "127.0.0.1", Error: true},
		{Pos: helpers.Mark(), Dst: "127.0.0.1:0", Error: true},
		{Pos: helpers.Mark(), Dst: "2001:db8::1:4739", Error: true},
		{Pos: helpers.Mark(), Dst: "ftp://127.0.0.1/", Error: true},
		{Pos: helpers.Mark(), Dst: "", Error: true},
	}
	for _, tc := range cases {
		kind, address, err := ParseDestination(tc.Dst)
		if err != nil && !tc.Error {
			t.Errorf("%sParseDestination(%q) error:\n%+v", tc.Pos, tc.Dst, err)
			continue
		} else if err == nil && tc.Error {
			t.Errorf("%sParseDestination(%q) did not error", tc.Pos, tc.Dst)
			continue
		}
		if kind != tc.Kind || address != tc.Address {
			t.Errorf("%sParseDestination(%q) = %q, %q, expected %q, %q",
				tc.Pos, tc.Dst, kind, address, tc.Kind, tc.Address)
		}
		if got := IsIPv6(tc.Dst); got != tc.IPv6 {
			t.Errorf("%sIsIPv6(%q) = %v, expected %v", tc.Pos, tc.Dst, got, tc.IPv6)
		}
	}
}

func TestDuration(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		JSON     string
		Expected time.Duration
		Error    bool
	}{
		{Pos: helpers.Mark(), JSON: `2`, Expected: 2 * time.Second},
		{Pos: helpers.Mark(), JSON: `0.5`, Expected: 500 * time.Millisecond},
		{Pos: helpers.Mark(), JSON: `"100ms"`, Expected: 100 * time.Millisecond},
		{Pos: helpers.Mark(), JSON: `"hello"`, Error: true},
		{Pos: helpers.Mark(), JSON: `-1`, Error: true},
		{Pos: helpers.Mark(), JSON: `true`, Error: true},
	}
	for _, tc := range cases {
		var got Duration
		err := json.Unmarshal([]byte(tc.JSON), &got)
		if err != nil && !tc.Error {
			t.Errorf("%sUnmarshal(%s) error:\n%+v", tc.Pos, tc.JSON, err)
		} else if err == nil && tc.Error {
			t.Errorf("%sUnmarshal(%s) did not error", tc.Pos, tc.JSON)
		} else if time.Duration(got) != tc.Expected {
			t.Errorf("%sUnmarshal(%s) = %s, expected %s", tc.Pos, tc.JSON, time.Duration(got), tc.Expected)
		}
	}
	out, err := json.Marshal(Duration(1500 * time.Millisecond))
	if err != nil || string(out) != `"1.5s"` {
		t.Errorf("Marshal() = %s, %v", out, err)
	}
}

func TestUDP(t *testing.T) {
	r := reporter.NewMock(t)
	mockClock := clock.NewMock()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP() error:\n%+v", err)
	}
	defer conn.Close()

	config := DefaultConfiguration()
	config.Dst = conn.LocalAddr().String()
	tr, err := New(r, config, Dependencies{Clock: mockClock})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	defer tr.Close()
	if tr.Type() != KindUDP {
		t.Fatalf("Type() = %s", tr.Type())
	}

	record, err := tr.Send(context.Background(), Packet{
		Name:            "gen1",
		Payload:         []byte("hello"),
		TemplateRecords: 1,
		DataRecords:     2,
	})
	if err != nil {
		t.Fatalf("Send() error:\n%+v", err)
	}
	expected := session.Record{
		Name:                "gen1",
		Time:                mockClock.Now(),
		Status:              session.StatusSuccess,
		TransportStatus:     "sent",
		BytesUploaded:       5,
		TempRecordsUploaded: 1,
		DataRecordsUploaded: 2,
	}
	if diff := helpers.Diff(record, expected); diff != "" {
		t.Fatalf("Send() (-got, +want):\n%s", diff)
	}

	buf := make([]byte, 100)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error:\n%+v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("ReadFromUDP() = %q", buf[:n])
	}
}

func TestFile(t *testing.T) {
	r := reporter.NewMock(t)
	mockClock := clock.NewMock()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	config := DefaultConfiguration()
	config.Dst = "file://" + path
	config.FileMaxSize = 10
	tr, err := New(r, config, Dependencies{Clock: mockClock})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	for _, payload := range []string{"abcd", "efgh", "ijkl", "m"} {
		mockClock.Add(time.Second)
		record, err := tr.Send(context.Background(), Packet{Name: "p", Payload: []byte(payload), DataRecords: 1})
		if err != nil {
			t.Fatalf("Send() error:\n%+v", err)
		}
		if record.Status != session.StatusSuccess || record.BytesUploaded != len(payload) {
			t.Fatalf("Send() = %+v", record)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error:\n%+v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error:\n%+v", err)
	}
	if string(got) != "ijklm" {
		t.Errorf("ReadFile() = %q, expected %q", got, "ijklm")
	}
	// Rotation happened when sending "ijkl", 3 seconds after start
	rotated := filepath.Join(dir, "out.bin."+strconv.FormatInt(time.Unix(0, 0).Add(3*time.Second).UnixNano(), 10))
	got, err = os.ReadFile(rotated)
	if err != nil {
		t.Fatalf("ReadFile() error:\n%+v", err)
	}
	if string(got) != "abcdefgh" {
		t.Errorf("ReadFile() = %q, expected %q", got, "abcdefgh")
	}
}

func TestFileCreatedOnFirstWrite(t *testing.T) {
	r := reporter.NewMock(t)
	path := filepath.Join(t.TempDir(), "out.bin")
	config := DefaultConfiguration()
	config.Dst = "file://" + path
	tr, err := New(r, config, Dependencies{})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Stat() after New() error:\n%+v", err)
	}
	if _, err := tr.Send(context.Background(), Packet{Name: "p", Payload: []byte("abcd")}); err != nil {
		t.Fatalf("Send() error:\n%+v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error:\n%+v", err)
	}
	if got, err := os.ReadFile(path); err != nil || string(got) != "abcd" {
		t.Fatalf("ReadFile() = %q, %v", got, err)
	}
}

func TestNewErrors(t *testing.T) {
	r := reporter.NewMock(t)
	for _, dst := range []string{"", "nothing", "file:///nonexistent/dir/file", "file://" + t.TempDir()} {
		config := DefaultConfiguration()
		config.Dst = dst
		if _, err := New(r, config, Dependencies{}); err == nil {
			t.Errorf("New(%q) did not error", dst)
		}
	}
}

func TestSendErrorWrapsTransportError(t *testing.T) {
	r := reporter.NewMock(t)
	config := DefaultConfiguration()
	config.Dst = "http://127.0.0.1:1/"
	config.RepeatsWaitTime = time.Millisecond
	config.Timeout = time.Second
	tr, err := New(r, config, Dependencies{})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	defer tr.Close()
	record, err := tr.Send(context.Background(), Packet{Name: "p", Payload: []byte("x")})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Send() error %v, expected ErrTransport", err)
	}
	if record.Status != session.StatusFailed || record.TransportStatus == "" {
		t.Fatalf("Send() = %+v", record)
	}
}
