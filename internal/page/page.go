// ABOUTME: Host page abstraction: URL hash, hash-change and message listeners, popups
// ABOUTME: Stands in for window/location/localStorage so the runtime can run headless

package page

import (
	"errors"
	"strings"
	"sync"

	"github.com/2389/glance-widget/internal/storage"
)

// ErrPopupBlocked is returned when no popup opener is available.
var ErrPopupBlocked = errors.New("popup blocked")

// Message is a cross-window message as delivered by postMessage.
type Message struct {
	Origin string
	Data   map[string]any
}

// String returns a string field from the message data.
func (m Message) String(key string) string {
	v, _ := m.Data[key].(string)
	return v
}

// Opener opens a popup window at url.
type Opener func(url string) error

// Page is the page a widget is embedded into. Listeners are called
// synchronously on the goroutine that triggered them.
type Page struct {
	mu            sync.Mutex
	hash          string
	nextID        int
	hashListeners map[int]func(hash string)
	msgListeners  map[int]func(Message)
	opener        Opener
	popups        []string

	store storage.Storage
}

// New creates a page backed by store. A nil store gets in-memory storage.
func New(store storage.Storage) *Page {
	if store == nil {
		store = storage.NewMemory()
	}
	return &Page{
		hashListeners: make(map[int]func(string)),
		msgListeners:  make(map[int]func(Message)),
		store:         store,
	}
}

// Storage returns the page-persistent store.
func (p *Page) Storage() storage.Storage { return p.store }

// Hash returns the current fragment without the leading '#'.
func (p *Page) Hash() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hash
}

// Navigate sets the fragment. Hash-change listeners fire only when the value
// actually changes, as in a browser.
func (p *Page) Navigate(hash string) {
	hash = strings.TrimPrefix(hash, "#")

	p.mu.Lock()
	if hash == p.hash {
		p.mu.Unlock()
		return
	}
	p.hash = hash
	listeners := make([]func(string), 0, len(p.hashListeners))
	for _, fn := range p.hashListeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(hash)
	}
}

// OnHashChange registers fn and returns a function that removes it.
func (p *Page) OnHashChange(fn func(hash string)) (remove func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.hashListeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.hashListeners, id)
	}
}

// HashListeners returns the number of registered hash-change listeners.
func (p *Page) HashListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hashListeners)
}

// OnMessage registers fn for cross-window messages and returns a remover.
func (p *Page) OnMessage(fn func(Message)) (remove func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.msgListeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.msgListeners, id)
	}
}

// MessageListeners returns the number of registered message listeners.
func (p *Page) MessageListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgListeners)
}

// PostMessage delivers msg to every message listener.
func (p *Page) PostMessage(msg Message) {
	p.mu.Lock()
	listeners := make([]func(Message), 0, len(p.msgListeners))
	for _, fn := range p.msgListeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// SetOpener installs the popup opener. Without one, popups are recorded
// but considered opened.
func (p *Page) SetOpener(o Opener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opener = o
}

// OpenPopup opens a popup window at url.
func (p *Page) OpenPopup(url string) error {
	p.mu.Lock()
	p.popups = append(p.popups, url)
	opener := p.opener
	p.mu.Unlock()

	if opener == nil {
		return nil
	}
	return opener(url)
}

// Popups returns the URLs of every popup opened so far.
func (p *Page) Popups() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.popups...)
}
