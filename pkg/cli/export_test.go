package cli

var (
	NewAppForTest  = newApp
	GetIndexConfig = getIndexConfig
	NewClassifier  = newClassifier
)
