// Package dedupe remembers recently handled requests for a bounded time so a
// retried request can be answered with the original result instead of being
// processed again.
//
//	acks := dedupe.New[Ack](5*time.Minute, 10000)
//	key := dedupe.Key(userID, clientMessageID)
//	if ack, ok := acks.Get(key); ok {
//		return ack // retry
//	}
//	ack := process()
//	acks.Put(key, ack)
package dedupe
