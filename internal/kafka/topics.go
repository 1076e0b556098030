package kafka

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-escrow/internal/logger"
)

// EnsureTopicsExist creates the domain-event topics on the cluster
// controller so the first publish does not race topic auto-creation.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			if log != nil {
				log.LogKafka("BOOTSTRAP", topic, "topic created")
			}
		case strings.Contains(err.Error(), "already exists"):
			if log != nil {
				log.LogKafka("BOOTSTRAP", topic, "topic already exists")
			}
		default:
			if log != nil {
				log.Warn("KAFKA", fmt.Sprintf("failed to create topic %s: %v", topic, err))
			}
		}
	}

	// Give the controller a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
	return nil
}
