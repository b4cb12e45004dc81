package mirror

import (
	"fmt"
	"time"

	"github.com/256dpi/gomqtt/packet"
)

// PUBLISH payload as text, APRS frames are printable.
func PacketString(p packet.Generic) string {
	if p == nil {
		return "(nil)"
	}
	if pub, ok := p.(*packet.Publish); ok {
		m := &pub.Message
		return fmt.Sprintf("<Publish ID=%d Dup=%t Topic=%q QOS=%d Retain=%t Payload=%q>", pub.ID, pub.Dup, m.Topic, m.QOS, m.Retain, m.Payload)
	}
	return p.String()
}

func defaultString(main, def string) string {
	if main == "" {
		return def
	}
	return main
}

func keepaliveAndHalf(sec uint16) time.Duration {
	d := time.Duration(sec) * time.Second
	return d + d/2
}
