package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// StartPosition — глобальная политика начальной позиции курсора,
// выбираемая один раз при старте потребителя.
type StartPosition string

const (
	// StartLatest пропускает всю историю партиции.
	StartLatest StartPosition = "latest"
	// StartEarliest воспроизводит партицию с начала.
	StartEarliest StartPosition = "earliest"
)

// Record — одна запись, прочитанная из партиции журнала событий.
type Record struct {
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
}

// Log — партиционированный журнал событий с независимым последовательным
// чтением каждой партиции по непрозрачному курсору.
//
// Read возвращает записи и курсор для следующего чтения. Пустой курсор при
// nil-ошибке означает, что партиция исчерпана (удалена или пересоздана) и
// потребитель должен заново перечислить партиции, а не продолжать чтение.
type Log interface {
	Partitions(ctx context.Context) ([]int, error)
	OpenCursor(ctx context.Context, partition int, start StartPosition) (string, error)
	Read(ctx context.Context, partition int, cursor string, limit int) ([]Record, string, error)
	Close() error
}

const (
	readMaxBytes = 10e6
	readMaxWait  = 2 * time.Second
)

// KafkaLog реализует Log поверх kafka-топика. Соединения с лидерами партиций
// кэшируются и пересоздаются после ошибок чтения.
type KafkaLog struct {
	brokers []string
	topic   string

	mu    sync.Mutex
	conns map[int]*kafka.Conn
}

// NewKafkaLog создаёт журнал событий поверх указанного топика.
func NewKafkaLog(brokers []string, topic string) *KafkaLog {
	return &KafkaLog{
		brokers: brokers,
		topic:   topic,
		conns:   make(map[int]*kafka.Conn),
	}
}

// Partitions возвращает отсортированный список текущих партиций топика.
func (l *KafkaLog) Partitions(ctx context.Context) ([]int, error) {
	conn, err := l.dialAny(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	parts, err := conn.ReadPartitions(l.topic)
	if err != nil {
		return nil, fmt.Errorf("read partitions: %w", err)
	}

	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	sort.Ints(ids)

	return ids, nil
}

// OpenCursor открывает курсор партиции согласно политике начальной позиции.
func (l *KafkaLog) OpenCursor(ctx context.Context, partition int, start StartPosition) (string, error) {
	conn, err := l.leaderConn(ctx, partition)
	if err != nil {
		return "", err
	}

	var offset int64
	if start == StartEarliest {
		offset, err = conn.ReadFirstOffset()
	} else {
		offset, err = conn.ReadLastOffset()
	}
	if err != nil {
		l.dropConn(partition)
		return "", fmt.Errorf("read %s offset of partition %d: %w", start, partition, err)
	}

	return strconv.FormatInt(offset, 10), nil
}

// Read читает из партиции не более limit записей, начиная с позиции курсора.
func (l *KafkaLog) Read(ctx context.Context, partition int, cursor string, limit int) ([]Record, string, error) {
	offset, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("parse cursor %q: %w", cursor, err)
	}

	conn, err := l.leaderConn(ctx, partition)
	if err != nil {
		return nil, "", err
	}

	if _, err := conn.Seek(offset, kafka.SeekAbsolute); err != nil {
		l.dropConn(partition)
		if errors.Is(err, kafka.OffsetOutOfRange) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("seek partition %d: %w", partition, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(readMaxWait)); err != nil {
		l.dropConn(partition)
		return nil, "", fmt.Errorf("set read deadline: %w", err)
	}

	batch := conn.ReadBatch(1, readMaxBytes)

	records := make([]Record, 0, limit)
	next := offset
	var readErr error
	for len(records) < limit {
		msg, err := batch.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		records = append(records, Record{
			Partition: partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
		})
		next = msg.Offset + 1
	}
	if cerr := batch.Close(); cerr != nil && readErr == nil {
		readErr = cerr
	}

	if readErr != nil && !isEndOfBatch(readErr) {
		l.dropConn(partition)
		if errors.Is(readErr, kafka.OffsetOutOfRange) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("read partition %d: %w", partition, readErr)
	}

	return records, strconv.FormatInt(next, 10), nil
}

// Close закрывает все соединения с лидерами партиций.
func (l *KafkaLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var closeErr error
	for id, conn := range l.conns {
		if err := conn.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		delete(l.conns, id)
	}
	return closeErr
}

func (l *KafkaLog) dialAny(ctx context.Context) (*kafka.Conn, error) {
	var lastErr error
	for _, broker := range l.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("dial brokers: %w", lastErr)
}

func (l *KafkaLog) leaderConn(ctx context.Context, partition int) (*kafka.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if conn, ok := l.conns[partition]; ok {
		return conn, nil
	}

	var lastErr error
	for _, broker := range l.brokers {
		conn, err := kafka.DialLeader(ctx, "tcp", broker, l.topic, partition)
		if err == nil {
			l.conns[partition] = conn
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("dial leader of partition %d: %w", partition, lastErr)
}

func (l *KafkaLog) dropConn(partition int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if conn, ok := l.conns[partition]; ok {
		_ = conn.Close()
		delete(l.conns, partition)
	}
}

// isEndOfBatch сообщает, что чтение пакета завершилось штатно:
// данные закончились или истёк интервал ожидания.
func isEndOfBatch(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, kafka.RequestTimedOut) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
