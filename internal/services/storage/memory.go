package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var ErrNotFound = errors.New("object not found")

// Memory in-memory реализация Storage для дев-режима и тестов.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[objectName] = b
	m.mu.Unlock()
	return objectName, nil
}

func (m *Memory) Download(ctx context.Context, objectName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[objectName]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) GetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[objectName]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return "memory://" + objectName, nil
}

var _ Storage = (*Memory)(nil)
