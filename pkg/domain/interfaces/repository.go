package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Knowledge() KnowledgeRepository
	Draft() DraftRepository
	Gap() GapRepository

	Close() error
}
