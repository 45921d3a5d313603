package shared

import "fmt"

// AnnouncementLockKey builds the lock key guarding one channel's announcement.
func AnnouncementLockKey(channelID string) string {
	return fmt.Sprintf("announcement:channel:%s:lock", channelID)
}
