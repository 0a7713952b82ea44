package signing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"homehub/service-portal/service-portal-backend/internal/identity"
	"homehub/service-portal/service-portal-backend/pkg/session"
)

// memoryRepository is a stateful Repository fake. The OTP lockout and
// revision tests need real read-your-writes behavior, which a call-recording
// mock cannot give.
type memoryRepository struct {
	mu           sync.Mutex
	reports      map[uuid.UUID]*Report
	records      map[string]*SignatureRecord
	conflictOnce bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		reports: map[uuid.UUID]*Report{},
		records: map[string]*SignatureRecord{},
	}
}

func recKey(reportID uuid.UUID, role SignerRole) string {
	return fmt.Sprintf("%s|%s", reportID, role)
}

func (m *memoryRepository) CreateReport(ctx context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *report
	m.reports[report.ID] = &cp
	return nil
}

func (m *memoryRepository) GetReportByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepository) UpdateReportSigned(ctx context.Context, report *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictOnce {
		m.conflictOnce = false
		return ErrRevisionConflict
	}
	stored, ok := m.reports[report.ID]
	if !ok || stored.Revision != report.Revision {
		return ErrRevisionConflict
	}
	cp := *report
	cp.Revision++
	m.reports[report.ID] = &cp
	report.Revision++
	return nil
}

func (m *memoryRepository) UpsertIssuance(ctx context.Context, rec *SignatureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recKey(rec.ReportID, rec.SignerRole)
	existing, ok := m.records[key]
	if !ok {
		cp := *rec
		m.records[key] = &cp
		return nil
	}
	existing.SignerEmail = rec.SignerEmail
	existing.OTPHash = rec.OTPHash
	existing.OTPSalt = rec.OTPSalt
	existing.OTPExpiresAt = rec.OTPExpiresAt
	existing.OTPAttempts = 0
	existing.OTPLockedAt = nil
	existing.OTPVerifiedAt = nil
	existing.OTPConsumedAt = nil
	return nil
}

func (m *memoryRepository) GetSignatureRecord(ctx context.Context, reportID uuid.UUID, role SignerRole) (*SignatureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(reportID, role)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryRepository) RecordFailedAttempt(ctx context.Context, reportID uuid.UUID, role SignerRole, lockThreshold int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(reportID, role)]
	if !ok {
		return 0, false, fmt.Errorf("no signature record for %s/%s", reportID, role)
	}
	rec.OTPAttempts++
	if rec.OTPAttempts >= lockThreshold && rec.OTPLockedAt == nil {
		now := time.Now()
		rec.OTPLockedAt = &now
	}
	return rec.OTPAttempts, rec.OTPLockedAt != nil, nil
}

func (m *memoryRepository) MarkVerified(ctx context.Context, reportID uuid.UUID, role SignerRole, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(reportID, role)]
	if !ok {
		return fmt.Errorf("no signature record for %s/%s", reportID, role)
	}
	rec.OTPVerifiedAt = &at
	return nil
}

func (m *memoryRepository) MarkConsumed(ctx context.Context, reportID uuid.UUID, role SignerRole, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(reportID, role)]
	if !ok {
		return fmt.Errorf("no signature record for %s/%s", reportID, role)
	}
	rec.OTPConsumedAt = &at
	return nil
}

func (m *memoryRepository) SaveSignedArtifact(ctx context.Context, rec *SignatureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[recKey(rec.ReportID, rec.SignerRole)]
	if !ok {
		return fmt.Errorf("no signature record for %s/%s", rec.ReportID, rec.SignerRole)
	}
	stored.SignatureImage = rec.SignatureImage
	stored.SignedKey = rec.SignedKey
	stored.SignedAt = rec.SignedAt
	return nil
}

// memoryBlobStore implements storage.S3Client over a map.
type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: map[string][]byte{}}
}

func (b *memoryBlobStore) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[bucket+"/"+key] = data
	return nil
}

func (b *memoryBlobStore) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBlobStore) Delete(ctx context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, bucket+"/"+key)
	return nil
}

func (b *memoryBlobStore) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	return b.ObjectURL(bucket, key), nil
}

func (b *memoryBlobStore) ObjectURL(bucket, key string) string {
	return "https://cdn.test/" + bucket + "/" + key
}

func (b *memoryBlobStore) object(bucket, key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+key]
	return data, ok
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

// staticDirectory implements identity.Directory from fixed maps.
type staticDirectory struct {
	professionals map[uuid.UUID]string
	clients       map[uuid.UUID]string
}

func (d *staticDirectory) EmailOf(ctx context.Context, professionalID uuid.UUID) (string, error) {
	email, ok := d.professionals[professionalID]
	if !ok {
		return "", identity.ErrNotFound
	}
	return email, nil
}

func (d *staticDirectory) ClientEmailOf(ctx context.Context, serviceRequestID uuid.UUID) (string, error) {
	email, ok := d.clients[serviceRequestID]
	if !ok {
		return "", identity.ErrNotFound
	}
	return email, nil
}

// fakeSessionStore implements session.Store from a fixed map.
type fakeSessionStore struct {
	sessions map[string]*session.Session
}

func (s *fakeSessionStore) Resolve(ctx context.Context, bearer string) (*session.Session, error) {
	sess, ok := s.sessions[bearer]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}
