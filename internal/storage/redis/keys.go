package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/dicefunnel/internal/model"
)

// Key prefix for all funnel data
const keyPrefix = "funnel"

// playerKey returns the Redis key for a Player
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// identityIndexKey returns the Redis key for the identity hash -> player_id index
func identityIndexKey(identityHash string) string {
	return fmt.Sprintf("%s:idx:identity:%s", keyPrefix, identityHash)
}

// codeIndexKey returns the Redis key for the reward code -> player_id index
func codeIndexKey(code string) string {
	return fmt.Sprintf("%s:idx:code:%s", keyPrefix, code)
}

// nameIndexKey returns the Redis key for the SET of player ids sharing a name
func nameIndexKey(name string) string {
	return fmt.Sprintf("%s:idx:name:%s", keyPrefix, name)
}

// eventKey returns the Redis key for a FunnelEvent
func eventKey(id string) string {
	return fmt.Sprintf("%s:event:%s", keyPrefix, id)
}

// eventsTimelineKey returns the Redis key for the ZSET of all events scored by time
func eventsTimelineKey() string {
	return fmt.Sprintf("%s:idx:events", keyPrefix)
}

// eventsByStageKey returns the Redis key for the ZSET of events in one stage
func eventsByStageKey(stage model.Stage) string {
	return fmt.Sprintf("%s:idx:events:stage:%s", keyPrefix, stage)
}

// eventSeqKey returns the Redis key for the counter ordering events
// appended in the same millisecond
func eventSeqKey() string {
	return fmt.Sprintf("%s:seq:events", keyPrefix)
}

// eventMember returns the event ZSET member. Members with equal scores sort
// lexically, so the zero-padded sequence keeps them in append order.
func eventMember(seq int64, id string) string {
	return fmt.Sprintf("%019d:%s", seq, id)
}

// eventIDFromMember returns the event id stored in an event ZSET member
func eventIDFromMember(member string) string {
	if _, id, ok := strings.Cut(member, ":"); ok {
		return id
	}
	return member
}

// eventsByIdentityKey returns the Redis key for the SET of event ids for one identity
func eventsByIdentityKey(identity string) string {
	return fmt.Sprintf("%s:idx:events:identity:%s", keyPrefix, identity)
}

// sessionKey returns the Redis key for a Session
func sessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, token)
}

// customerTagsKey returns the Redis key for a CustomerTagMirror
func customerTagsKey(customerID string) string {
	return fmt.Sprintf("%s:customer_tags:%s", keyPrefix, customerID)
}
