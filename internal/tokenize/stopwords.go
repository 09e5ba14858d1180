package tokenize

// Stopwords are stored already normalized. Question words are included so
// "what did X say about Y" reduces to the content terms.
var englishStopwords = []string{
	"a", "about", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during",
	"each", "else", "ever", "every", "few", "find", "for", "from", "further",
	"get", "got", "had", "has", "have", "having", "he", "her", "here", "hers", "him", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "just", "know", "last", "let",
	"me", "more", "most", "my", "no", "nor", "not", "now", "of", "off", "on", "once", "only", "or",
	"other", "our", "out", "over", "own", "please", "recent", "recently",
	"said", "same", "say", "says", "she", "should", "show", "so", "some", "such",
	"tell", "than", "that", "the", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "to", "too", "under", "until", "up", "us",
	"very", "was", "we", "were", "what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "would", "you", "your", "yours",
}

var hebrewStopwords = []string{
	"אבל", "או", "אז", "אחרי", "אי", "איך", "איפה", "אם", "אני", "אנחנו", "את", "אתה", "אתם", "אותו", "אותה",
	"אל", "אצל", "בין", "גם", "הוא", "היא", "הם", "הן", "היה", "היתה", "זה", "זאת", "זו",
	"יש", "כי", "כל", "כמו", "כן", "לא", "לי", "לו", "לה", "לפני", "מה", "מי", "מתי", "מאוד",
	"עד", "על", "עם", "של", "שלי", "שלו", "שלה", "תגיד", "תספר", "אמר", "אמרה",
}
