package trending

// stopWords are removed before counting. Entries are case-folded and have
// apostrophes stripped, matching Tokenize.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
		"had", "her", "was", "one", "our", "out", "has", "have", "him", "his",
		"how", "its", "may", "new", "now", "old", "see", "two", "who", "boy",
		"did", "get", "got", "let", "put", "say", "she", "too", "use", "way",
		"this", "that", "with", "from", "they", "will", "would", "there",
		"their", "what", "about", "which", "when", "make", "like", "time",
		"just", "know", "take", "into", "year", "your", "some", "could",
		"them", "than", "then", "look", "only", "come", "over", "think",
		"also", "back", "after", "work", "first", "well", "even", "want",
		"because", "these", "give", "most", "very", "been", "were", "being",
		"much", "more", "really", "today", "feel", "feeling", "felt", "im",
		"ive", "its", "dont", "didnt", "cant", "wont", "isnt", "thats",
		"went", "here", "where", "while", "still", "such", "should", "each",
		"other", "again", "same", "every", "off", "own", "why", "yet",
		"day", "bit", "lot", "things", "thing", "something", "anything",
	} {
		stopWords[w] = struct{}{}
	}
}

func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
