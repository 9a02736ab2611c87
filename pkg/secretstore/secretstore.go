// Package secretstore 基于 Badger 的本地凭证存储（可选静态加密）。
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// ErrNotOpened store 未打开或已关闭
var ErrNotOpened = errors.New("secretstore: not opened")

// Store is a small KV wrapper over Badger.
// Encryption is provided by Badger options (value log + key registry), not by this wrapper.
type Store struct {
	db *badger.DB
}

// OpenOptions 打开参数
type OpenOptions struct {
	// Path 数据目录；InMemory 为 true 时忽略
	Path string
	// InMemory 仅驻留内存，进程退出即丢失（测试与一次性会话）
	InMemory bool
	// EncryptionKey 32 字节；为空则不加密
	EncryptionKey []byte
	ReadOnly      bool
}

// Open 打开存储
func Open(opts OpenOptions) (*Store, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) == "":
		return nil, errors.New("secretstore: path is required")
	default:
		bopts = badger.DefaultOptions(opts.Path).WithReadOnly(opts.ReadOnly)
	}
	bopts = bopts.WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求设置索引缓存
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(16 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "secretstore: open")
	}
	return &Store{db: db}, nil
}

// Close 关闭
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func normalizeKey(key string) ([]byte, error) {
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, errors.New("secretstore: key is empty")
	}
	return k, nil
}

// GetString 读取字符串；第二个返回值表示是否存在
func (s *Store) GetString(key string) (string, bool, error) {
	raw, ok, err := s.get(key)
	return string(raw), ok, err
}

func (s *Store) get(key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	var (
		out   []byte
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// SetString 写入字符串
func (s *Store) SetString(key, val string) error {
	return s.set(key, []byte(val))
}

func (s *Store) set(key string, val []byte) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, val)
	})
}

// GetJSON 读取并解码 JSON 值
func (s *Store) GetJSON(key string, out any) (bool, error) {
	raw, ok, err := s.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "secretstore: decode %s", key)
	}
	return true, nil
}

// SetJSON 编码并写入 JSON 值
func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "secretstore: encode %s", key)
	}
	return s.set(key, raw)
}

// Delete 删除一组键，不存在的键忽略
func (s *Store) Delete(keys ...string) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			k, err := normalizeKey(key)
			if err != nil {
				return err
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ParseKey 解析 32 字节密钥（hex 或 base64），空输入返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// hex 优先，避免把 hex 串误当 base64
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
