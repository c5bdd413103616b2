// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"ipfixgen/common/helpers"
	"ipfixgen/ipfix/template"
)

// testMessage builds an IPFIX message with one template record and
// the provided number of data records.
func testMessage(records int) []byte {
	tpl := template.Template{
		ID: 256,
		Fields: []template.Field{
			{Name: "octetDeltaCount", Type: 1, Length: 8},
			{Name: "protocolIdentifier", Type: 4, Length: 1, Data: []byte{17}},
		},
	}
	var body bytes.Buffer
	template.WriteSetHeader(&body, template.V10.TemplateSetID(false), tpl.RecordLength(template.V10))
	tpl.WriteRecord(&body, template.V10)
	template.WriteSetHeader(&body, tpl.ID, records*tpl.DataRecordLength())
	for range records {
		tpl.WriteDataRecord(&body)
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, template.V10Header{
		Version: 10,
		Length:  uint16(template.V10.HeaderLength() + body.Len()),
	})
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestPushCommand(t *testing.T) {
	var mu sync.Mutex
	headers := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		io.Copy(io.Discard, req.Body)
		mu.Lock()
		headers = append(headers, req.Header.Get("X-Exporter"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	message := testMessage(3)
	writeTestFile(t, dir, "flows.ipfix", string(message))

	root := RootCmd
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"push", "--dst", server.URL, "--dir", dir, "--header", "X-Exporter=ipfixgen"})
	PushOptions = defaultPushOptions()
	if err := root.Execute(); err != nil {
		t.Fatalf("`push` error:\n%+v", err)
	}
	expected := fmt.Sprintf("flows.ipfix: success, %d bytes, 1 templates, 3 records\n", len(message))
	if diff := helpers.Diff(buf.String(), expected); diff != "" {
		t.Errorf("`push` (-got, +want):\n%s", diff)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := helpers.Diff(headers, []string{"ipfixgen"}); diff != "" {
		t.Errorf("collector headers (-got, +want):\n%s", diff)
	}
}

func TestPushCommandDevices(t *testing.T) {
	var mu sync.Mutex
	devices := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		io.Copy(io.Discard, req.Body)
		mu.Lock()
		devices = append(devices, fmt.Sprintf("%s/%s",
			req.Header.Get("X-Ipfix-Site"), req.Header.Get("X-Ipfix-Device")))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	message := testMessage(1)
	writeTestFile(t, dir, "flows.ipfix", string(message))

	root := RootCmd
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"push", "--dst", server.URL, "--dir", dir, "--http-sites", "2", "--http-devices", "2"})
	PushOptions = defaultPushOptions()
	if err := root.Execute(); err != nil {
		t.Fatalf("`push` error:\n%+v", err)
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	slices.Sort(got)
	expected := []string{}
	for _, device := range []string{"site1/device1", "site1/device2", "site2/device1", "site2/device2"} {
		expected = append(expected, fmt.Sprintf("%s/flows.ipfix: success, %d bytes, 1 templates, 1 records",
			device, len(message)))
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("`push` (-got, +want):\n%s", diff)
	}
	mu.Lock()
	defer mu.Unlock()
	slices.Sort(devices)
	if diff := helpers.Diff(devices, []string{"site1/device1", "site1/device2", "site2/device1", "site2/device2"}); diff != "" {
		t.Errorf("collector headers (-got, +want):\n%s", diff)
	}
}

func TestPushCommandErrors(t *testing.T) {
	for _, args := range [][]string{
		{"push", "--dir", t.TempDir()},
		{"push", "--dst", "127.0.0.1:2055"},
		{"push", "--dst", "127.0.0.1:2055", "--dir", "/nonexistent/directory"},
		{"push", "--dst", "127.0.0.1:2055", "--dir", t.TempDir(), "--http-sites", "-1"},
	} {
		root := RootCmd
		root.SetOut(new(bytes.Buffer))
		root.SetArgs(args)
		PushOptions = defaultPushOptions()
		if err := root.Execute(); err == nil {
			t.Errorf("%v did not error", args)
		}
	}
}
