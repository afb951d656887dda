// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mux_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/termplex/lib/ansi"
	"github.com/bureau-foundation/termplex/lib/clock"
	"github.com/bureau-foundation/termplex/lib/testutil"
	"github.com/bureau-foundation/termplex/mux"
	"github.com/bureau-foundation/termplex/mux/muxtest"
)

const waitTimeout = 5 * time.Second

func newRegistry(t *testing.T) (*mux.Registry, *muxtest.Spawner) {
	t.Helper()
	spawner := &muxtest.Spawner{}
	registry := mux.NewRegistry(mux.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Spawn:  spawner.Spawn,
		Defaults: mux.TerminalParams{
			Shell:   "/bin/bash",
			Rows:    24,
			Columns: 80,
		},
	})
	t.Cleanup(registry.Close)
	return registry, spawner
}

// recorder collects what a callback client is sent.
type recorder struct {
	mu          sync.Mutex
	output      strings.Builder
	resizes     [][2]int
	disconnects chan mux.DisconnectEvent
}

func newRecorder() *recorder {
	return &recorder{disconnects: make(chan mux.DisconnectEvent, 4)}
}

func (r *recorder) params(path string, exclusive bool) mux.ConnectParams {
	return mux.ConnectParams{
		Path:      path,
		Exclusive: exclusive,
		OnWrite: func(data []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.output.Write(data)
		},
		OnResize: func(rows, columns int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.resizes = append(r.resizes, [2]int{rows, columns})
		},
		OnDisconnect: func(event mux.DisconnectEvent) { r.disconnects <- event },
	}
}

func (r *recorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.String()
}

func requireCode(t *testing.T, err error, want mux.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("got nil error, want %s", want)
	}
	if got := mux.CodeOf(err); got != want {
		t.Fatalf("error code: got %s, want %s (%v)", got, want, err)
	}
}

func TestExclusiveAttachRefusedWhileAttached(t *testing.T) {
	t.Parallel()
	registry, _ := newRegistry(t)

	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := session.ConnectClient(newRecorder().params("first", false)); err != nil {
		t.Fatalf("first ConnectClient: %v", err)
	}

	_, err = session.ConnectClient(newRecorder().params("second", true))
	requireCode(t, err, mux.CodeSessionAlreadyConnected)
	if mux.CategoryOf(err) != mux.CategoryConflict {
		t.Errorf("category: got %s, want %s", mux.CategoryOf(err), mux.CategoryConflict)
	}
	if _, ok := registry.Client("second"); ok {
		t.Error("refused client was registered")
	}
	if got := len(session.Clients()); got != 1 {
		t.Errorf("clients: got %d, want 1", got)
	}
}

func TestAttachRefusedWhileExclusive(t *testing.T) {
	t.Parallel()
	registry, _ := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := session.ConnectClient(newRecorder().params("owner", true)); err != nil {
		t.Fatalf("exclusive ConnectClient: %v", err)
	}

	_, err = session.ConnectClient(newRecorder().params("viewer", false))
	requireCode(t, err, mux.CodeSessionAlreadyConnected)

	if err := session.Detach("owner", mux.ReasonDetached); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if _, err := session.ConnectClient(newRecorder().params("viewer", false)); err != nil {
		t.Errorf("ConnectClient after exclusive owner left: %v", err)
	}
}

func TestWriteReachesTerminalAndOutputReachesClients(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	result, err := session.ConnectClient(viewer.params("viewer", false))
	if err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}
	if result.State == nil {
		t.Fatal("ConnectClient returned no screen state for a session with a terminal")
	}
	if result.Rows != 24 || result.Columns != 80 {
		t.Errorf("size: got %dx%d, want 80x24", result.Columns, result.Rows)
	}

	process := spawner.Last()
	session.Write([]byte("echo hi\n"))
	testutil.Eventually(t, waitTimeout, func() bool { return process.Input() == "echo hi\n" }, "input reaching the terminal")

	if err := process.Emit("$ echo hi\r\nhi\r\n$ "); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool {
		return strings.Contains(viewer.text(), "hi\r\n$ ")
	}, "output reaching the client")

	state := session.ScreenState()
	found := false
	for _, line := range state.Normal.Buffer {
		if line == "hi" {
			found = true
		}
	}
	if !found {
		t.Errorf("screen has no line %q: %q", "hi", state.Normal.Buffer)
	}
	if state.Normal.Cursor.X != 3 || state.Normal.Cursor.Y != 3 {
		t.Errorf("cursor: got (%d,%d), want (3,3)", state.Normal.Cursor.X, state.Normal.Cursor.Y)
	}
}

func TestResizeUpdatesTerminalParamsAndClients(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}

	if err := session.Resize(30, 100); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	sizes := spawner.Last().Sizes()
	if len(sizes) != 1 || sizes[0] != (muxtest.Size{Columns: 100, Rows: 30}) {
		t.Errorf("PTY sizes: got %v, want [{100 30}]", sizes)
	}
	params := session.Params()
	if params.Rows != 30 || params.Columns != 100 {
		t.Errorf("params: got %dx%d, want 100x30", params.Columns, params.Rows)
	}
	viewer.mu.Lock()
	resizes := viewer.resizes
	viewer.mu.Unlock()
	if len(resizes) != 1 || resizes[0] != [2]int{30, 100} {
		t.Errorf("client resizes: got %v, want [[30 100]]", resizes)
	}

	if _, err := session.CreateTerminal(mux.TerminalParams{}); err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}
	options := spawner.Last().Options
	if options.Rows != 30 || options.Columns != 100 {
		t.Errorf("new terminal size: got %dx%d, want 100x30", options.Columns, options.Rows)
	}

	requireCode(t, session.Resize(0, 100), mux.CodeBadMessage)
}

func TestConnectResizesToClient(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	params := newRecorder().params("viewer", false)
	params.Rows, params.Columns = 50, 132
	result, err := session.ConnectClient(params)
	if err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}
	if result.Rows != 50 || result.Columns != 132 {
		t.Errorf("result size: got %dx%d, want 132x50", result.Columns, result.Rows)
	}
	if len(result.State.Normal.Buffer) != 50 {
		t.Errorf("state rows: got %d, want 50", len(result.State.Normal.Buffer))
	}
	if sizes := spawner.Last().Sizes(); len(sizes) != 1 {
		t.Errorf("PTY sizes: got %v, want one resize", sizes)
	}

	same := newRecorder().params("other", false)
	same.Rows, same.Columns = 50, 132
	if _, err := session.ConnectClient(same); err != nil {
		t.Fatalf("second ConnectClient: %v", err)
	}
	if sizes := spawner.Last().Sizes(); len(sizes) != 1 {
		t.Errorf("matching size resized again: %v", sizes)
	}
}

func TestDetachPrefixFiresOnceAndSendsNothing(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	terminal := session.ActiveTerminal()
	process := spawner.Last()

	detaches := 0
	terminal.OnDetach(func() { detaches++ })
	terminal.HandleInput([]byte{0x01, 'd'})
	if detaches != 1 {
		t.Fatalf("detach callback: got %d calls, want 1", detaches)
	}

	terminal.HandleInput([]byte("x"))
	testutil.RequireReceive(t, process.Inputs(), waitTimeout, "sentinel input")
	if got := process.Input(); got != "x" {
		t.Errorf("PTY input: got %q, want %q", got, "x")
	}
}

func TestAttentionPrefix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		inputs []string
		want   string
		detach int
	}{
		{name: "plain", inputs: []string{"ls\n"}, want: "ls\n"},
		{name: "literal ctrl-a", inputs: []string{"a\x01\x01b"}, want: "a\x01b"},
		{name: "unknown command swallowed", inputs: []string{"a\x01xb"}, want: "ab"},
		{name: "capital D detaches", inputs: []string{"ab\x01Dcd"}, want: "ab", detach: 1},
		{name: "prefix split across writes", inputs: []string{"a\x01", "d", "z"}, want: "az", detach: 1},
		{name: "literal split across writes", inputs: []string{"\x01", "\x01"}, want: "\x01"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			registry, spawner := newRegistry(t)
			session, err := registry.Create("s", mux.TerminalParams{})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			terminal := session.ActiveTerminal()
			detaches := 0
			terminal.OnDetach(func() { detaches++ })
			for _, input := range test.inputs {
				terminal.HandleInput([]byte(input))
			}
			terminal.HandleInput([]byte("."))

			want := test.want + "."
			process := spawner.Last()
			testutil.Eventually(t, waitTimeout, func() bool { return strings.HasSuffix(process.Input(), ".") }, "sentinel")
			if got := process.Input(); got != want {
				t.Errorf("PTY input: got %q, want %q", got, want)
			}
			if detaches != test.detach {
				t.Errorf("detaches: got %d, want %d", detaches, test.detach)
			}
		})
	}
}

func TestDetachSendsFinalDisplayState(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}
	if err := spawner.Last().Emit("ab\x1b[?1049h\x1b[5;7H"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool { return session.DisplayState().AltScreen }, "alternate screen")

	if err := session.Detach("viewer", mux.ReasonDetached); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	event := testutil.RequireReceive(t, viewer.disconnects, waitTimeout, "disconnect event")
	if event.Reason != mux.ReasonDetached {
		t.Errorf("reason: got %q, want %q", event.Reason, mux.ReasonDetached)
	}
	if !event.Display.AltScreen || event.Display.Cursor.X != 7 || event.Display.Cursor.Y != 5 {
		t.Errorf("display: got %+v, want alternate screen with cursor (7,5)", event.Display)
	}
	if got := len(session.Clients()); got != 0 {
		t.Errorf("clients after detach: got %d, want 0", got)
	}

	requireCode(t, session.Detach("viewer", mux.ReasonDetached), mux.CodeClientNotFound)
}

func TestClientPathUniqueUntilDisconnect(t *testing.T) {
	t.Parallel()
	registry, _ := newRegistry(t)
	first, err := registry.Create("one", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create one: %v", err)
	}
	second, err := registry.Create("two", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create two: %v", err)
	}

	result, err := first.ConnectClient(newRecorder().params("/tmp/client.sock", false))
	if err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}
	_, err = second.ConnectClient(newRecorder().params("/tmp/client.sock", false))
	requireCode(t, err, mux.CodeClientExists)
	if mux.WireCode(err) != mux.CodeBadConnectPath {
		t.Errorf("wire code: got %s, want %s", mux.WireCode(err), mux.CodeBadConnectPath)
	}

	result.Client.Disconnect(mux.ReasonDetached, first.DisplayState())
	if _, err := second.ConnectClient(newRecorder().params("/tmp/client.sock", false)); err != nil {
		t.Errorf("ConnectClient after disconnect: %v", err)
	}
}

func TestWriteFromDetachesTypingClient(t *testing.T) {
	t.Parallel()
	registry, _ := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	typist, watcher := newRecorder(), newRecorder()
	if _, err := session.ConnectClient(typist.params("typist", false)); err != nil {
		t.Fatalf("ConnectClient typist: %v", err)
	}
	if _, err := session.ConnectClient(watcher.params("watcher", false)); err != nil {
		t.Fatalf("ConnectClient watcher: %v", err)
	}

	if err := session.WriteFrom("typist", []byte("\x01d")); err != nil {
		t.Fatalf("WriteFrom: %v", err)
	}
	event := testutil.RequireReceive(t, typist.disconnects, waitTimeout, "typist disconnect")
	if event.Reason != mux.ReasonDetached {
		t.Errorf("reason: got %q, want %q", event.Reason, mux.ReasonDetached)
	}
	clients := session.Clients()
	if len(clients) != 1 || clients[0].Path != "watcher" {
		t.Errorf("clients: got %+v, want only watcher", clients)
	}

	requireCode(t, session.WriteFrom("typist", []byte("x")), mux.CodeClientNotFound)
}

func TestLastTerminalExitClosesSession(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}

	spawner.Last().Exit(nil)
	event := testutil.RequireReceive(t, viewer.disconnects, waitTimeout, "disconnect on exit")
	if event.Reason != mux.ReasonExited {
		t.Errorf("reason: got %q, want %q", event.Reason, mux.ReasonExited)
	}
	if !spawner.Last().Closed() {
		t.Error("exited terminal's process was not closed")
	}
	if _, ok := registry.Lookup("s1"); ok {
		t.Error("session still registered after its last terminal exited")
	}

	session.Write([]byte("ignored"))
	if state := session.ScreenState(); state != nil {
		t.Errorf("ScreenState without terminals: got %+v, want nil", state)
	}
	if _, err := session.ConnectClient(newRecorder().params("late", false)); mux.CodeOf(err) != mux.CodeSessionNotFound {
		t.Errorf("ConnectClient on closed session: got %v, want SESSION_NOT_FOUND", err)
	}
}

func TestActiveTerminalExitRepaintsClients(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first := spawner.Last()
	secondTerminal, err := session.CreateTerminal(mux.TerminalParams{Command: []string{"top"}})
	if err != nil {
		t.Fatalf("CreateTerminal: %v", err)
	}
	second := spawner.Last()
	if second.Options.Executable != "top" {
		t.Errorf("executable: got %q, want %q", second.Options.Executable, "top")
	}
	if err := second.Emit("from the second terminal"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool {
		return secondTerminal.ScreenState().Normal.Buffer[0] == "from the second terminal"
	}, "second terminal output")

	if got := len(session.Terminals()); got != 2 {
		t.Fatalf("terminals: got %d, want 2", got)
	}

	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}
	first.Exit(nil)

	testutil.Eventually(t, waitTimeout, func() bool {
		return strings.Contains(viewer.text(), "\x1b[H\x1b[2Jfrom the second terminal")
	}, "repaint from the second terminal")
	if session.ActiveTerminal() != secondTerminal {
		t.Error("second terminal did not become active")
	}
	if terminals := session.Terminals(); len(terminals) != 1 || terminals[0] != secondTerminal {
		t.Errorf("terminals after exit: got %v, want only the second", terminals)
	}
	if !first.Closed() {
		t.Error("exited terminal's process was not closed")
	}
	if second.Closed() {
		t.Error("surviving terminal's process was closed")
	}
	if _, ok := registry.Lookup("s1"); !ok {
		t.Error("session removed while a terminal remains")
	}
}

func TestChangeTerminalRepaintsClient(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := spawner.Last().Emit("$ make"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool {
		return session.ScreenState().Normal.Buffer[0] == "$ make"
	}, "terminal output")

	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}
	client, ok := registry.Client("viewer")
	if !ok {
		t.Fatal("viewer not registered")
	}

	before := len(viewer.text())
	client.ChangeTerminal(ansi.DisplayState{AltScreen: true}, session.ScreenState())
	painted := viewer.text()[before:]
	if !strings.HasPrefix(painted, "\x1b[?1049l\x1b[H\x1b[2J$ make") {
		t.Errorf("repaint: got %q, want it to leave the alternate screen and redraw", painted)
	}

	before = len(viewer.text())
	client.ChangeTerminal(ansi.DisplayState{}, nil)
	if got := viewer.text()[before:]; got != "" {
		t.Errorf("repaint without a screen: got %q, want nothing", got)
	}
}

func TestCreateConflictsAndSpawnFailure(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	if _, err := registry.Create("s1", mux.TerminalParams{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := registry.Create("s1", mux.TerminalParams{})
	requireCode(t, err, mux.CodeSessionExists)

	spawner.Fail = errors.New("fork failed")
	_, err = registry.Create("broken", mux.TerminalParams{})
	if mux.CategoryOf(err) != mux.CategoryProcess {
		t.Fatalf("spawn failure: got %v, want a process error", err)
	}
	if _, ok := registry.Lookup("broken"); ok {
		t.Error("session registered despite spawn failure")
	}
	if got := len(registry.List()); got != 1 {
		t.Errorf("sessions: got %d, want 1", got)
	}

	requireCode(t, func() error { _, err := registry.Create("", mux.TerminalParams{}); return err }(), mux.CodeBadMessage)
}

func TestStreamClientReceivesOutput(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer reader.Close()

	display := session.DisplayState()
	connected := false
	_, err = session.ConnectClient(mux.ConnectParams{
		Path:      "stream",
		Stream:    writer,
		Resync:    &display,
		OnConnect: func(mux.ConnectResult) { connected = true },
	})
	if err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}

	var mu sync.Mutex
	var received strings.Builder
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		buffer := make([]byte, 4096)
		for {
			n, err := reader.Read(buffer)
			mu.Lock()
			received.Write(buffer[:n])
			mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	output := func() string {
		mu.Lock()
		defer mu.Unlock()
		return received.String()
	}

	if !connected {
		t.Error("OnConnect did not run")
	}
	if err := spawner.Last().Emit("hello"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	testutil.Eventually(t, waitTimeout, func() bool {
		return strings.HasSuffix(output(), "hello")
	}, "output on the stream")

	if err := session.Detach("stream", mux.ReasonDetached); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	testutil.RequireClosed(t, eof, waitTimeout, "stream closed after detach")
	if got := output(); !strings.HasPrefix(got, "\x1b[H\x1b[2J") {
		t.Errorf("stream output does not start with a repaint: %q", got)
	}
}

func TestDetachClientFindsSession(t *testing.T) {
	t.Parallel()
	registry, _ := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}

	if err := registry.DetachClient("viewer", mux.ReasonConnectionLost); err != nil {
		t.Fatalf("DetachClient: %v", err)
	}
	event := testutil.RequireReceive(t, viewer.disconnects, waitTimeout, "disconnect")
	if event.Reason != mux.ReasonConnectionLost {
		t.Errorf("reason: got %q, want %q", event.Reason, mux.ReasonConnectionLost)
	}
	requireCode(t, registry.DetachClient("viewer", mux.ReasonConnectionLost), mux.CodeClientNotFound)
}

func TestRegistryCloseDisconnectsEveryone(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}

	registry.Close()
	event := testutil.RequireReceive(t, viewer.disconnects, waitTimeout, "shutdown disconnect")
	if event.Reason != mux.ReasonServerShutdown {
		t.Errorf("reason: got %q, want %q", event.Reason, mux.ReasonServerShutdown)
	}
	testutil.RequireClosed(t, spawner.Last().Exited(), waitTimeout, "terminal hung up")
	if len(registry.List()) != 0 {
		t.Error("sessions remain after Close")
	}
	if _, err := registry.Create("s2", mux.TerminalParams{}); err == nil {
		t.Error("Create succeeded after Close")
	}
}

func TestRemoveDisconnectsAndFreesName(t *testing.T) {
	t.Parallel()
	registry, spawner := newRegistry(t)
	session, err := registry.Create("s1", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	viewer := newRecorder()
	if _, err := session.ConnectClient(viewer.params("viewer", false)); err != nil {
		t.Fatalf("ConnectClient: %v", err)
	}

	if err := registry.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	event := testutil.RequireReceive(t, viewer.disconnects, waitTimeout, "removal disconnect")
	if event.Reason != mux.ReasonSessionRemoved {
		t.Errorf("reason: got %q, want %q", event.Reason, mux.ReasonSessionRemoved)
	}
	testutil.RequireClosed(t, spawner.Last().Exited(), waitTimeout, "terminal hung up")
	if _, ok := registry.Lookup("s1"); ok {
		t.Error("session still registered after Remove")
	}
	if _, ok := registry.Client("viewer"); ok {
		t.Error("client still registered after Remove")
	}
	requireCode(t, registry.Remove("s1"), mux.CodeSessionNotFound)

	if _, err := registry.Create("s1", mux.TerminalParams{}); err != nil {
		t.Errorf("name not reusable after Remove: %v", err)
	}
}

func TestShellEchoThroughPTY(t *testing.T) {
	t.Parallel()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	registry := mux.NewRegistry(mux.Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Defaults: mux.TerminalParams{Shell: "/bin/sh", Rows: 24, Columns: 80, Env: map[string]string{"PS1": "$ "}},
	})
	t.Cleanup(registry.Close)

	session, err := registry.Create("shell", mux.TerminalParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	session.Write([]byte("echo hi\n"))

	hasLine := func() bool {
		for _, line := range session.ScreenState().Normal.Buffer {
			if line == "hi" {
				return true
			}
		}
		return false
	}
	testutil.Eventually(t, 10*time.Second, hasLine, "echo output on the screen")
}

// countPTYMasters counts this process's open /dev/ptmx descriptors.
func countPTYMasters(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list descriptors: %v", err)
	}
	count := 0
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", entry.Name()))
		if err != nil {
			continue
		}
		if target == "/dev/ptmx" || target == "/dev/pts/ptmx" {
			count++
		}
	}
	return count
}

// Not parallel: it counts descriptors across the whole test process.
func TestExitedTerminalsReleasePTY(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("no /bin/true")
	}
	registry := mux.NewRegistry(mux.Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Defaults: mux.TerminalParams{Shell: "/bin/sh", Rows: 24, Columns: 80},
	})
	t.Cleanup(registry.Close)

	before := countPTYMasters(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if _, err := registry.Create(name, mux.TerminalParams{Command: []string{"/bin/true"}}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
		testutil.Eventually(t, 10*time.Second, func() bool {
			_, ok := registry.Lookup(name)
			return !ok
		}, "session %s removed after its program exited", name)
	}
	if after := countPTYMasters(t); after != before {
		t.Errorf("PTY masters: %d before, %d after five exited sessions", before, after)
	}
}
