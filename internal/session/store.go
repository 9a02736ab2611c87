package session

import (
	"sync"

	"github.com/memestreet/marketsync/pkg/secretstore"
)

const (
	keyToken   = "session.token"
	keyProfile = "session.profile"
)

// Persisted 持久化的会话内容
type Persisted struct {
	Token   string
	Profile Profile
}

// Store 会话持久化
type Store interface {
	Load() (Persisted, bool, error)
	Save(Persisted) error
	Clear() error
}

// SecretStore 基于 secretstore（Badger）的实现
type SecretStore struct {
	kv *secretstore.Store
}

// NewSecretStore 包装已打开的 secretstore
func NewSecretStore(kv *secretstore.Store) *SecretStore {
	return &SecretStore{kv: kv}
}

func (s *SecretStore) Load() (Persisted, bool, error) {
	token, ok, err := s.kv.GetString(keyToken)
	if err != nil || !ok || token == "" {
		return Persisted{}, false, err
	}
	p := Persisted{Token: token}
	if _, err := s.kv.GetJSON(keyProfile, &p.Profile); err != nil {
		// 资料损坏不影响凭证本身
		log.Warnf("[session] cached profile unreadable: %v", err)
		p.Profile = Profile{}
	}
	return p, true, nil
}

func (s *SecretStore) Save(p Persisted) error {
	if err := s.kv.SetString(keyToken, p.Token); err != nil {
		return err
	}
	return s.kv.SetJSON(keyProfile, p.Profile)
}

func (s *SecretStore) Clear() error {
	return s.kv.Delete(keyToken, keyProfile)
}

// MemoryStore 进程内实现
type MemoryStore struct {
	mu  sync.Mutex
	p   Persisted
	set bool
}

func (m *MemoryStore) Load() (Persisted, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p, m.set, nil
}

func (m *MemoryStore) Save(p Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p, m.set = p, true
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p, m.set = Persisted{}, false
	return nil
}
