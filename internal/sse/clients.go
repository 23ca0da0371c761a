// Package sse provides Server-Sent Events client management for pushing
// autosave status to open editor sessions.
package sse

import (
	"sync"

	"github.com/kalmarr/matrixcbs/internal/model"
)

type Client struct {
	Msg chan string
	Key model.DraftKey
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client)
	close(client.Msg)
}

// Broadcast delivers msg to every client watching the given draft key.
// Slow clients are skipped rather than blocked on.
func (s *SSEClients) Broadcast(key model.DraftKey, msg string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.Key == key {
			select {
			case client.Msg <- msg:
			default:
			}
		}
	}
}
