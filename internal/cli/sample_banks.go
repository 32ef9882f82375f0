package cli

import "promptquiz-service/internal/domain"

// sampleBanks backs quiz generation when neither a bank file nor Postgres is configured.
func sampleBanks() map[string][]domain.Question {
	return map[string][]domain.Question{
		"general": {
			{Text: "What is the capital of France?", Options: []string{"Berlin", "Madrid", "Paris", "Rome"}, CorrectAnswer: 2},
			{Text: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectAnswer: 2},
			{Text: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Mercury"}, CorrectAnswer: 1},
			{Text: "What is the largest ocean on Earth?", Options: []string{"Atlantic", "Indian", "Arctic", "Pacific"}, CorrectAnswer: 3},
			{Text: "Who painted the Mona Lisa?", Options: []string{"Leonardo da Vinci", "Michelangelo", "Raphael", "Donatello"}, CorrectAnswer: 0},
			{Text: "What is the chemical symbol for gold?", Options: []string{"Ag", "Au", "Gd", "Go"}, CorrectAnswer: 1},
			{Text: "How many sides does a hexagon have?", Options: []string{"5", "6", "7", "8"}, CorrectAnswer: 1},
			{Text: "Which language has the most native speakers?", Options: []string{"English", "Spanish", "Hindi", "Mandarin Chinese"}, CorrectAnswer: 3},
			{Text: "What is the freezing point of water in Celsius?", Options: []string{"0", "32", "-10", "100"}, CorrectAnswer: 0},
			{Text: "Which is the longest river in the world?", Options: []string{"Amazon", "Nile", "Yangtze", "Mississippi"}, CorrectAnswer: 1},
		},
		"go": {
			{Text: "Which keyword starts a goroutine?", Options: []string{"async", "go", "spawn", "thread"}, CorrectAnswer: 1},
			{Text: "What does a nil map panic on?", Options: []string{"Reads", "Writes", "len()", "range"}, CorrectAnswer: 1},
			{Text: "Which statement runs when the surrounding function returns?", Options: []string{"defer", "finally", "ensure", "after"}, CorrectAnswer: 0},
			{Text: "What is the zero value of a slice?", Options: []string{"[]", "nil", "0", "undefined"}, CorrectAnswer: 1},
			{Text: "Which package provides WaitGroup?", Options: []string{"context", "runtime", "sync", "os"}, CorrectAnswer: 2},
			{Text: "How are exported identifiers marked?", Options: []string{"pub keyword", "Leading capital letter", "export keyword", "Underscore prefix"}, CorrectAnswer: 1},
			{Text: "Which verb wraps an error in fmt.Errorf?", Options: []string{"%v", "%e", "%w", "%s"}, CorrectAnswer: 2},
			{Text: "What does a receive on a closed channel return?", Options: []string{"It panics", "It blocks", "The zero value", "An error"}, CorrectAnswer: 2},
			{Text: "Which tool formats Go source?", Options: []string{"gofmt", "golint", "govet", "gopls"}, CorrectAnswer: 0},
			{Text: "What does select with a default case do when no channel is ready?", Options: []string{"Blocks", "Panics", "Runs default", "Returns"}, CorrectAnswer: 2},
		},
	}
}
