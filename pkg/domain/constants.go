package domain

// KeywordCount is the exact number of keywords a run carries once extracted.
const KeywordCount = 4

// DiaryOpener is the temporal opener every diary text starts with.
const DiaryOpener = "今日は"

// PlaceholderImageURL is used whenever no generated illustration is available.
const PlaceholderImageURL = "https://images.unsplash.com/photo-1516934024742-b461fba47600?w=800&auto=format&fit=crop&q=60"
