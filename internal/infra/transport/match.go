package transport

import "strings"

// matchTopic reports whether routingKey matches an AMQP-style topic
// pattern: segments are dot-separated; "*" matches exactly one segment;
// "#" matches zero or more trailing segments.
func matchTopic(pattern, routingKey string) bool {
	pSegs := strings.Split(pattern, ".")
	kSegs := strings.Split(routingKey, ".")

	for i, p := range pSegs {
		if p == "#" {
			return true // matches everything from here on, including nothing
		}
		if i >= len(kSegs) {
			return false
		}
		if p != "*" && p != kSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(kSegs)
}
