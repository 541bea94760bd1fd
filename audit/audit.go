package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResourceTypeUserAccount is the resource type recorded for
// authentication decisions against a user account.
const ResourceTypeUserAccount = "user_account"

// LoginType is the mechanism used to authenticate.
type LoginType string

const (
	// LoginPKI is certificate-based authentication.
	LoginPKI LoginType = "PKI"
	// LoginUsernamePassword is password-based authentication.
	LoginUsernamePassword LoginType = "USERNAME_PASSWORD"
	// LoginToken is bearer-token authentication against an issued session.
	LoginToken LoginType = "LOGIN_TOKEN"
	// LoginCommandLine marks access originating from local tooling.
	LoginCommandLine LoginType = "COMMAND_LINE"
)

// AccessType classifies the recorded decision.
type AccessType string

const (
	AccessCreate   AccessType = "CREATE"
	AccessModify   AccessType = "MODIFY"
	AccessRetrieve AccessType = "RETRIEVE"
	AccessDelete   AccessType = "DELETE"

	AccessReject  AccessType = "REJECT"
	AccessApprove AccessType = "APPROVE"

	AccessLocked   AccessType = "LOCKED"
	AccessUnlocked AccessType = "UNLOCKED"

	AccessActivated   AccessType = "ACTIVATED"
	AccessDeactivated AccessType = "DEACTIVATED"

	AccessLogin  AccessType = "LOGIN"
	AccessLogout AccessType = "LOGOUT"

	AccessAssertPermission AccessType = "ASSERT_PERMISSION"
)

// SystemInfo describes the system and classification context an access
// decision was made under.
type SystemInfo struct {
	UUID                  string   `json:"uuid"`
	SerialNumber          string   `json:"serial_number"`
	Name                  string   `json:"name"`
	Version               string   `json:"version"`
	MaximumClassification string   `json:"maximum_classification"`
	ClassificationGuide   string   `json:"classification_guide"`
	Networks              []string `json:"networks,omitempty"`
}

// PlaceholderSystemInfo is the unclassified stand-in used when no current
// system info has been registered. Auditing must never become a hard
// dependency that can break authentication.
func PlaceholderSystemInfo() SystemInfo {
	return SystemInfo{
		UUID:                  "????",
		SerialNumber:          "????",
		Name:                  "????",
		Version:               "????",
		MaximumClassification: "U",
		ClassificationGuide:   "N/A",
	}
}

// AccessInfo is one immutable, append-only audit record per decision.
type AccessInfo struct {
	UUID string `json:"uuid"`

	// UserUUID is the verified initiating identity. Empty on denied
	// attempts so an unverified identity is never asserted.
	UserUUID  string    `json:"user_uuid,omitempty"`
	LoginType LoginType `json:"login_type"`

	// ProxyUUID identifies a trusted system logging in on behalf of
	// the user, when applicable.
	ProxyUUID string    `json:"proxy_uuid,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	ResourceUUID   string `json:"resource_uuid"`
	ResourceName   string `json:"resource_name"`
	ResourceType   string `json:"resource_type"`
	Classification string `json:"classification"`

	AccessType AccessType `json:"access_type"`
	Granted    bool       `json:"granted"`

	SystemInfoUUID string `json:"system_info_uuid"`
}

// NewUUID returns a fresh record identifier.
func NewUUID() string { return uuid.NewString() }

// Store persists access records and supplies the current system context.
type Store interface {
	// Record persists one access decision. Implementations should be
	// fast or asynchronous; the caller ignores the error on the
	// authentication hot path.
	Record(ctx context.Context, info AccessInfo) error

	// CurrentSystemInfo returns the registered system context, or nil
	// when none exists.
	CurrentSystemInfo(ctx context.Context) (*SystemInfo, error)
}

// NoOpStore drops records and reports no system context.
type NoOpStore struct{}

func (NoOpStore) Record(context.Context, AccessInfo) error { return nil }

func (NoOpStore) CurrentSystemInfo(context.Context) (*SystemInfo, error) { return nil, nil }

// MemoryStore keeps records in memory. Intended for tests and demos.
type MemoryStore struct {
	mu      sync.Mutex
	records []AccessInfo
	current *SystemInfo
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Record(_ context.Context, info AccessInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, info)
	return nil
}

func (s *MemoryStore) CurrentSystemInfo(context.Context) (*SystemInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	cp := *s.current
	return &cp, nil
}

// SetCurrentSystemInfo registers the system context returned by
// CurrentSystemInfo.
func (s *MemoryStore) SetCurrentSystemInfo(info SystemInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &info
}

// Records returns a copy of everything recorded so far, in order.
func (s *MemoryStore) Records() []AccessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AccessInfo, len(s.records))
	copy(out, s.records)
	return out
}

// WriterStore appends records as JSON lines to an io.Writer.
type WriterStore struct {
	mu     sync.Mutex
	writer io.Writer

	// Current, when set, is returned by CurrentSystemInfo.
	Current *SystemInfo
}

func NewWriterStore(w io.Writer) *WriterStore {
	return &WriterStore{writer: w}
}

func (s *WriterStore) Record(_ context.Context, info AccessInfo) error {
	if s == nil || s.writer == nil {
		return nil
	}

	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	_, err = s.writer.Write([]byte("\n"))
	return err
}

func (s *WriterStore) CurrentSystemInfo(context.Context) (*SystemInfo, error) {
	return s.Current, nil
}
