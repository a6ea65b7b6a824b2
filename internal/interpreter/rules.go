package interpreter

import "homi/internal/speech"

func isFeeding(u speech.Utterance) bool {
	return u.ContainsAny("hungry", "feed", "food")
}

func isClose(u speech.Utterance) bool {
	switch {
	case u.ContainsAll("close", "game"),
		u.ContainsAll("stop", "game"),
		u.ContainsAll("thank", "you"):
		return true
	}
	return u.HasToken("thanks", "close", "finish", "finished", "done", "exit")
}

func isGreeting(u speech.Utterance) bool {
	return u.HasToken("hello", "hi", "hey")
}

func isHelp(u speech.Utterance) bool {
	return u.ContainsAny("can", "help", "assist")
}

func isHomework(u speech.Utterance) bool {
	return u.ContainsAny("homework", "exercise", "problem", "question", "solve", "assignment", "worksheet")
}
