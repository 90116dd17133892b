package store

const (
	activityKey = "lobbies:activity"
	interestKey = "interest:pay"
)

func lobbyKey(code string) string {
	return "lobby:" + code
}

func playersKey(code string) string {
	return "lobby:" + code + ":players"
}

func playerKey(code, playerID string) string {
	return "lobby:" + code + ":player:" + playerID
}

func userKey(id string) string {
	return "user:" + id
}
