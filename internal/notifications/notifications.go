package notifications

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"mediator/internal/models"
)

// writeWait ограничивает запись в медленный сокет
const writeWait = 10 * time.Second

// writer сериализует запись в одно соединение.
// flushed хранит уведомления, уже досланные при подключении.
type writer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	flushed map[string]bool
}

var (
	db      *gorm.DB
	clients = struct {
		sync.RWMutex
		m map[string]map[*websocket.Conn]*writer
	}{m: make(map[string]map[*websocket.Conn]*writer)}
)

// SetDB устанавливает соединение с базой данных для обновления уведомлений.
func SetDB(d *gorm.DB) {
	db = d
}

// register добавляет соединение; уже добавленное возвращается как есть.
func register(pubkey string, conn *websocket.Conn) *writer {
	clients.Lock()
	defer clients.Unlock()
	conns, ok := clients.m[pubkey]
	if !ok {
		conns = make(map[*websocket.Conn]*writer)
		clients.m[pubkey] = conns
	}
	w, ok := conns[conn]
	if !ok {
		w = &writer{conn: conn}
		conns[conn] = w
	}
	return w
}

// AddClient добавляет соединение вебсокета для pubkey.
func AddClient(pubkey string, conn *websocket.Conn) {
	register(pubkey, conn)
}

// RemoveClient удаляет соединение вебсокета для pubkey.
func RemoveClient(pubkey string, conn *websocket.Conn) {
	clients.Lock()
	defer clients.Unlock()
	if conns, ok := clients.m[pubkey]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(clients.m, pubkey)
		}
	}
}

// Online сообщает, есть ли у pubkey открытые соединения.
func Online(pubkey string) bool {
	clients.RLock()
	defer clients.RUnlock()
	return len(clients.m[pubkey]) > 0
}

// Send отправляет подписанный конверт через указанное соединение.
// При успешной отправке поле SentAt обновляется в базе данных.
func Send(conn *websocket.Conn, n models.Notification) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, n.Envelope); err != nil {
		return err
	}
	if db != nil && n.ID != "" {
		now := time.Now()
		db.Model(&models.Notification{}).Where("id = ?", n.ID).Update("sent_at", now)
	}
	return nil
}

// Broadcast отправляет уведомление всем соединениям pubkey.
// Запись идёт под блокировкой соединения, общий реестр не блокируется.
func Broadcast(pubkey string, n models.Notification) {
	clients.RLock()
	list := make([]*writer, 0, len(clients.m[pubkey]))
	for _, w := range clients.m[pubkey] {
		list = append(list, w)
	}
	clients.RUnlock()

	for _, w := range list {
		w.mu.Lock()
		if n.ID != "" && w.flushed[n.ID] {
			w.mu.Unlock()
			continue
		}
		err := Send(w.conn, n)
		w.mu.Unlock()
		if err != nil {
			w.conn.Close()
			RemoveClient(pubkey, w.conn)
		}
	}
}

// Flush подключает соединение и досылает в него недоставленные уведомления.
// Пока идёт досылка, Broadcast в это соединение ждёт: новые уведомления
// приходят после старых и не дублируются.
func Flush(pubkey string, conn *websocket.Conn) error {
	w := register(pubkey, conn)
	w.mu.Lock()
	defer w.mu.Unlock()
	if db == nil {
		return nil
	}
	var list []models.Notification
	if err := db.Where("pubkey = ? AND sent_at IS NULL", pubkey).Order("created_at").Find(&list).Error; err != nil {
		return err
	}
	if w.flushed == nil {
		w.flushed = make(map[string]bool, len(list))
	}
	for _, n := range list {
		if err := Send(conn, n); err != nil {
			return err
		}
		w.flushed[n.ID] = true
	}
	return nil
}
