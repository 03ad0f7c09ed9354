package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/edgecv/fleet-console/internal/domain"
	"github.com/edgecv/fleet-console/internal/platform/objectstore"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	blob, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(blob)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(blob), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = blob
	m.types[bucket+"/"+key] = contentType
	return nil
}

func (m *memStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	info, err := m.Stat(ctx, bucket, key)
	if err != nil {
		return nil, objectstore.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(m.objects[bucket+"/"+key])), info, nil
}

func (m *memStore) Stat(_ context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ObjectInfo{}, objectstore.ErrObjectNotFound
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(blob)), ContentType: m.types[bucket+"/"+key]}, nil
}

func sampleReport() domain.SubmissionReport {
	target, _ := domain.NewDevicesTarget([]string{"d1", "d2"})
	return domain.SubmissionReport{
		SessionID: "sess-1",
		Actor:     "operator",
		Request: domain.NewDeploymentRequest("uc-1", "night rollout",
			[]domain.ComponentSelection{{ComponentName: "compA", ComponentVersion: "1.0.0", ARN: "arn:a", Scope: domain.ScopePrivate}},
			target, domain.DefaultRolloutConfig()),
		DeploymentID: "dep-1",
		AutoIncluded: []domain.AutoIncludedComponent{{ComponentName: "compX", ComponentVersion: "2.0", Reason: "dependency"}},
		Outcome:      "succeeded_with_auto_inclusions",
	}
}

func TestArchive_PutAndGet(t *testing.T) {
	store := newMemStore()
	archive, err := NewArchive(nil, store, "receipts")
	if err != nil {
		t.Fatalf("NewArchive() err=%v", err)
	}
	archive.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	archive.SubmissionFinished(context.Background(), sampleReport())
	if store.types["receipts/uc-1/dep-1.json"] != "application/json" {
		t.Fatalf("receipt not stored under the expected key: %v", store.types)
	}

	got, err := archive.Get(context.Background(), "uc-1", "dep-1")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if got.Target.Mode != domain.TargetModeDevices || len(got.Target.DeviceIDs) != 2 {
		t.Fatalf("unexpected target %+v", got.Target)
	}
	if len(got.Components) != 1 || got.Components[0].ComponentName != "compA" || len(got.AutoIncluded) != 1 {
		t.Fatalf("unexpected receipt %+v", got)
	}
	ok, err := Verify(got)
	if err != nil || !ok {
		t.Fatalf("Verify()=(%v,%v)", ok, err)
	}
	got.Actor = "someone-else"
	if ok, _ := Verify(got); ok {
		t.Fatalf("tampered receipt should not verify")
	}
}

func TestArchive_SkipsFailedSubmissions(t *testing.T) {
	store := newMemStore()
	archive, _ := NewArchive(nil, store, "receipts")
	report := sampleReport()
	report.DeploymentID = ""
	report.Error = "quota exceeded"
	archive.SubmissionFinished(context.Background(), report)
	if len(store.objects) != 0 {
		t.Fatalf("failed submissions must not be archived")
	}
}

func TestArchive_GetMissing(t *testing.T) {
	archive, _ := NewArchive(nil, newMemStore(), "receipts")
	if _, err := archive.Get(context.Background(), "uc-1", "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestArchive_PutError(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("bucket unavailable")
	archive, _ := NewArchive(nil, store, "receipts")
	if _, err := archive.Put(context.Background(), sampleReport()); err == nil {
		t.Fatalf("expected put error")
	}
}

func TestNewArchive_Validation(t *testing.T) {
	if _, err := NewArchive(nil, nil, "receipts"); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := NewArchive(nil, newMemStore(), " "); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
