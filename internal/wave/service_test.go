package wave_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/i474232898/spotter-data-pull/internal/store"
	"github.com/i474232898/spotter-data-pull/internal/wave"
)

type fetchCall struct {
	device wave.Device
	start  string
	end    string
}

// fakeClient serves a fixed roster and answers every wave-data request with
// a document naming the device and window, unless an error is configured.
type fakeClient struct {
	devices    []wave.Device
	devicesErr error
	fail       map[string]error
	calls      []fetchCall
	onFetch    func(wave.Device)
	version    int
}

func (f *fakeClient) ListDevices(ctx context.Context) ([]wave.Device, error) {
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	return f.devices, nil
}

func (f *fakeClient) FetchWaveData(ctx context.Context, device wave.Device, window wave.Window) (json.RawMessage, error) {
	if f.onFetch != nil {
		f.onFetch(device)
	}
	f.calls = append(f.calls, fetchCall{device: device, start: window.StartParam(), end: window.EndParam()})
	if err, ok := f.fail[string(device)+"@"+window.StartParam()]; ok {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"spotterId":%q,"start":%q,"end":%q,"version":%d}`,
		device, window.StartParam(), window.EndParam(), f.version)), nil
}

func mustDay(t *testing.T, s string) wave.Day {
	t.Helper()
	d, err := wave.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return d
}

func rangeOf(t *testing.T, start, end string) wave.DateRange {
	return wave.DateRange{Start: mustDay(t, start), End: mustDay(t, end)}
}

func newService(t *testing.T, client wave.Client) (*wave.Service, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "out")
	fs, err := store.NewFileStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return wave.NewService(client, fs, zerolog.Nop()), root
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk: %v", err)
	}
	return files
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return doc
}

func TestRunEndToEnd(t *testing.T) {
	client := &fakeClient{devices: []wave.Device{"A", "B"}}
	svc, root := newService(t, client)

	res, err := svc.Run(context.Background(), rangeOf(t, "2023-01-01", "2023-01-02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"A/A_20230101.json", "A/A_20230102.json", "B/B_20230101.json", "B/B_20230102.json"}
	got := listFiles(t, root)
	if len(got) != len(want) {
		t.Fatalf("expected files %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected files %v, got %v", want, got)
		}
	}

	if res.Days != 2 || res.Attempted != 4 || res.Written != 4 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	// Days ascending, devices in roster order within a day.
	order := []fetchCall{
		{"A", "2023-01-01T00:00:00Z", "2023-01-02T00:00:00Z"},
		{"B", "2023-01-01T00:00:00Z", "2023-01-02T00:00:00Z"},
		{"A", "2023-01-02T00:00:00Z", "2023-01-03T00:00:00Z"},
		{"B", "2023-01-02T00:00:00Z", "2023-01-03T00:00:00Z"},
	}
	for i, c := range order {
		if client.calls[i] != c {
			t.Fatalf("call %d: expected %+v, got %+v", i, c, client.calls[i])
		}
	}

	doc := readDoc(t, filepath.Join(root, "B", "B_20230102.json"))
	if doc["spotterId"] != "B" || doc["start"] != "2023-01-02T00:00:00Z" {
		t.Fatalf("artifact does not match response: %v", doc)
	}
}

func TestRunRosterFailureAbortsBeforeAnything(t *testing.T) {
	client := &fakeClient{devicesErr: errors.New("http error 500")}
	svc, root := newService(t, client)

	_, err := svc.Run(context.Background(), rangeOf(t, "2023-01-01", "2023-01-02"))
	if !errors.Is(err, wave.ErrNoDevices) {
		t.Fatalf("expected ErrNoDevices, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no data fetches, got %d", len(client.calls))
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected output root not to be created, got %v", err)
	}
}

func TestListDevices(t *testing.T) {
	client := &fakeClient{devices: []wave.Device{"B", "A", "B"}}
	svc, _ := newService(t, client)

	devices, err := svc.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []wave.Device{"B", "A", "B"}
	if len(devices) != len(want) {
		t.Fatalf("expected %v, got %v", want, devices)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, devices)
		}
	}
}

func TestListDevicesFailureIsNoDevices(t *testing.T) {
	client := &fakeClient{devicesErr: fmt.Errorf("%w: device list", wave.ErrMalformedPayload)}
	svc, root := newService(t, client)

	_, err := svc.ListDevices(context.Background())
	if !errors.Is(err, wave.ErrNoDevices) {
		t.Fatalf("expected ErrNoDevices, got %v", err)
	}
	if !errors.Is(err, wave.ErrMalformedPayload) {
		t.Fatalf("expected cause to be kept, got %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected output root not to be created, got %v", err)
	}
}

func TestPullReversedRangeIsNoop(t *testing.T) {
	client := &fakeClient{devices: []wave.Device{"A"}}
	svc, root := newService(t, client)

	res, err := svc.Run(context.Background(), rangeOf(t, "2023-01-05", "2023-01-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.calls) != 0 || res.Attempted != 0 {
		t.Fatalf("expected no fetches, got %d", len(client.calls))
	}
	if files := listFiles(t, root); len(files) != 0 {
		t.Fatalf("expected no artifacts, got %v", files)
	}
}

func TestPullSingleDay(t *testing.T) {
	client := &fakeClient{devices: []wave.Device{"A", "B", "C"}}
	svc, root := newService(t, client)

	res, err := svc.Run(context.Background(), rangeOf(t, "2023-03-10", "2023-03-10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Days != 1 || len(client.calls) != 3 {
		t.Fatalf("expected one day with three fetches, got %+v", res)
	}
	if files := listFiles(t, root); len(files) != 3 {
		t.Fatalf("expected three artifacts, got %v", files)
	}
}

func TestPullCreatesDeviceDirsBeforeFetching(t *testing.T) {
	devices := []wave.Device{"A", "B", "C"}
	client := &fakeClient{devices: devices}
	svc, root := newService(t, client)

	client.onFetch = func(wave.Device) {
		for _, d := range devices {
			if info, err := os.Stat(filepath.Join(root, string(d))); err != nil || !info.IsDir() {
				t.Errorf("directory for %s missing at fetch time", d)
			}
		}
	}

	if _, err := svc.Run(context.Background(), rangeOf(t, "2023-01-01", "2023-01-01")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPullFailureIsSkipped(t *testing.T) {
	client := &fakeClient{
		devices: []wave.Device{"A", "B"},
		fail: map[string]error{
			"A@2023-01-01T00:00:00Z": errors.New("request failed: 503"),
		},
	}
	svc, root := newService(t, client)

	// A prior artifact for the failing pair must be left untouched.
	prior := filepath.Join(root, "A", "A_20230101.json")
	if err := os.MkdirAll(filepath.Dir(prior), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(prior, []byte(`{"old":true}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := svc.Run(context.Background(), rangeOf(t, "2023-01-01", "2023-01-02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Failed != 1 || res.Written != 3 || len(client.calls) != 4 {
		t.Fatalf("unexpected result %+v with %d calls", res, len(client.calls))
	}

	data, err := os.ReadFile(prior)
	if err != nil || string(data) != `{"old":true}` {
		t.Fatalf("prior artifact modified: %q (%v)", data, err)
	}
}

func TestPullFailureWritesNothing(t *testing.T) {
	client := &fakeClient{
		devices: []wave.Device{"A"},
		fail:    map[string]error{"A@2023-01-01T00:00:00Z": errors.New("boom")},
	}
	svc, root := newService(t, client)

	if _, err := svc.Run(context.Background(), rangeOf(t, "2023-01-01", "2023-01-01")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if files := listFiles(t, root); len(files) != 0 {
		t.Fatalf("expected no artifacts, got %v", files)
	}
}

func TestPullOverwritesWithLatestResponse(t *testing.T) {
	client := &fakeClient{devices: []wave.Device{"A"}, version: 1}
	svc, root := newService(t, client)
	rng := rangeOf(t, "2023-01-01", "2023-01-01")

	if _, err := svc.Run(context.Background(), rng); err != nil {
		t.Fatalf("first run: %v", err)
	}
	client.version = 2
	if _, err := svc.Run(context.Background(), rng); err != nil {
		t.Fatalf("second run: %v", err)
	}

	doc := readDoc(t, filepath.Join(root, "A", "A_20230101.json"))
	if doc["version"] != float64(2) {
		t.Fatalf("expected second response body, got %v", doc)
	}
}

func TestPullMalformedPayloadIsFatal(t *testing.T) {
	client := &fakeClient{
		devices: []wave.Device{"A", "B"},
		fail:    map[string]error{"A@2023-01-01T00:00:00Z": fmt.Errorf("%w: bad body", wave.ErrMalformedPayload)},
	}
	svc, _ := newService(t, client)

	_, err := svc.Run(context.Background(), rangeOf(t, "2023-01-01", "2023-01-02"))
	if !errors.Is(err, wave.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected run to stop after first call, got %d", len(client.calls))
	}
}

func TestPullStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{devices: []wave.Device{"A", "B"}}
	client.onFetch = func(wave.Device) { cancel() }
	svc, _ := newService(t, client)

	_, err := svc.Run(ctx, rangeOf(t, "2023-01-01", "2023-01-03"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected one call before cancellation, got %d", len(client.calls))
	}
}

func TestPullWithExplicitDevices(t *testing.T) {
	client := &fakeClient{}
	svc, root := newService(t, client)

	res, err := svc.Pull(context.Background(), []wave.Device{"X", "X"}, rangeOf(t, "2023-01-01", "2023-01-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Duplicates in the roster are fetched twice and land on the same file.
	if res.Attempted != 2 || res.Written != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if files := listFiles(t, root); len(files) != 1 {
		t.Fatalf("expected one artifact, got %v", files)
	}
}
