package conversations

// Significance weighs a conversation from 1 to 5 for long term memory.
func Significance(length int, npcCount int) int {
	switch {
	case length > 10 && npcCount >= 2:
		return 5
	case length > 7 || (length > 5 && npcCount >= 2):
		return 4
	case length > 4:
		return 3
	case length > 2:
		return 2
	}
	return 1
}
