package domain

import "fmt"

// MediaKind is the media type carried by a producer or consumer.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaAudio, MediaVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Direction is the media flow direction of a transport relative to the peer:
// a send transport carries media from the peer into the room, a recv
// transport carries other peers' media out to it.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionSend, DirectionRecv:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown transport direction %q", s)
}
