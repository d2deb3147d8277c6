package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/backend-go/internal/chunking"
	"github.com/docuchat/backend-go/internal/config"
	"github.com/docuchat/backend-go/internal/embedding"
	apperrors "github.com/docuchat/backend-go/internal/errors"
	"github.com/docuchat/backend-go/internal/models"
	"github.com/docuchat/backend-go/internal/vectorindex"
)

// memoryBlobStore 内存对象存储
type memoryBlobStore struct {
	files map[string][]byte
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{files: make(map[string][]byte)}
}

func (s *memoryBlobStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, errors.New("file not found: " + path)
	}
	return data, nil
}

func (s *memoryBlobStore) Store(ctx context.Context, path string, data []byte, contentType string) error {
	s.files[path] = data
	return nil
}

func (s *memoryBlobStore) Delete(ctx context.Context, path string) error {
	delete(s.files, path)
	return nil
}

// fakeTranscriber 固定结果的转写器
type fakeTranscriber struct {
	text     string
	segments []models.TimeRange
	duration float64
	err      error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, data []byte, fileName string) (string, []models.TimeRange, float64, error) {
	if f.err != nil {
		return "", nil, 0, f.err
	}
	return f.text, f.segments, f.duration, nil
}

type processorFixture struct {
	processor *DocumentProcessor
	store     *MockDocumentStore
	blobs     *memoryBlobStore
	index     *vectorindex.FlatIndex
}

func newProcessorFixture(t *testing.T, transcriber Transcriber) *processorFixture {
	t.Helper()

	mockStore := new(MockDocumentStore)
	blobs := newMemoryBlobStore()
	index, err := vectorindex.NewFlatIndex(384, t.TempDir(), 100)
	require.NoError(t, err)

	processor := NewDocumentProcessor(
		mockStore,
		blobs,
		chunking.NewChunker(1000, 200),
		embedding.NewLocalEmbedder(384),
		index,
		nil,
		transcriber,
		config.IngestionConfig{ChunkSize: 1000, ChunkOverlap: 200, MaxParallel: 4, BatchSize: 100},
	)
	return &processorFixture{processor: processor, store: mockStore, blobs: blobs, index: index}
}

func TestProcessTextDocument(t *testing.T) {
	f := newProcessorFixture(t, nil)

	doc := &models.Document{
		DocumentID: "d1",
		UserID:     "u1",
		FileName:   "report.txt",
		FileType:   models.FileTypeText,
		FilePath:   "uploads/report.txt",
		Status:     models.StatusPending,
	}
	f.blobs.files["uploads/report.txt"] = []byte("The pipeline transports crude oil. Inspections run quarterly.")

	f.store.On("GetDocument", mock.Anything, "d1").Return(doc, nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "d1", models.StatusProcessing, "").Return(nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "d1", models.StatusCompleted, "").Return(nil)
	f.store.On("UpdateDocument", mock.Anything, doc).Return(nil)

	var storedChunks []models.Chunk
	f.store.On("CreateChunks", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			storedChunks = args.Get(1).([]models.Chunk)
		}).
		Return(nil)

	err := f.processor.Process(context.Background(), "d1")
	assert.NoError(t, err)

	require.NotEmpty(t, storedChunks)
	assert.Equal(t, "d1_chunk_0", storedChunks[0].ChunkID)
	assert.Equal(t, 0, storedChunks[0].ChunkIndex)
	assert.Equal(t, models.FileTypeText, storedChunks[0].SourceType)

	emb, err := storedChunks[0].GetEmbedding()
	assert.NoError(t, err)
	assert.Len(t, emb, 384)

	assert.Equal(t, len(storedChunks), f.index.Stats().TotalVectors)
	assert.Equal(t, len(storedChunks), doc.ChunkCount)
	assert.NotEmpty(t, doc.ExtractedText)
}

func TestProcessAudioDocumentWithTimeline(t *testing.T) {
	transcriber := &fakeTranscriber{
		text: "welcome to the show today we discuss engines",
		segments: []models.TimeRange{
			{Start: 0, End: 3, Text: "welcome to the show"},
			{Start: 3, End: 7, Text: "today we discuss engines"},
		},
		duration: 7,
	}
	f := newProcessorFixture(t, transcriber)

	doc := &models.Document{
		DocumentID: "a1",
		UserID:     "u1",
		FileName:   "episode.mp3",
		FileType:   models.FileTypeAudio,
		FilePath:   "uploads/episode.mp3",
		Status:     models.StatusPending,
	}
	f.blobs.files["uploads/episode.mp3"] = []byte{0x49, 0x44, 0x33}

	f.store.On("GetDocument", mock.Anything, "a1").Return(doc, nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "a1", models.StatusProcessing, "").Return(nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "a1", models.StatusCompleted, "").Return(nil)
	f.store.On("UpdateDocument", mock.Anything, doc).Return(nil)

	var storedChunks []models.Chunk
	f.store.On("CreateChunks", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			storedChunks = args.Get(1).([]models.Chunk)
		}).
		Return(nil)

	err := f.processor.Process(context.Background(), "a1")
	assert.NoError(t, err)

	assert.Equal(t, 7.0, doc.Duration)
	assert.Equal(t, transcriber.text, doc.Transcription)

	require.NotEmpty(t, storedChunks)
	assert.True(t, storedChunks[0].HasTimeRanges())
	ranges, err := storedChunks[0].GetTimeRanges()
	assert.NoError(t, err)
	assert.Equal(t, 0.0, ranges[0].Start)
}

func TestProcessAudioWithoutTranscriberFails(t *testing.T) {
	f := newProcessorFixture(t, nil)

	doc := &models.Document{
		DocumentID: "a1",
		FileName:   "episode.mp3",
		FileType:   models.FileTypeAudio,
		FilePath:   "uploads/episode.mp3",
	}
	f.blobs.files["uploads/episode.mp3"] = []byte{0x00}

	f.store.On("GetDocument", mock.Anything, "a1").Return(doc, nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "a1", models.StatusProcessing, "").Return(nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "a1", models.StatusFailed, mock.Anything).Return(nil)

	err := f.processor.Process(context.Background(), "a1")
	assert.Error(t, err)

	// 失败必须落到终态failed，不能停留在processing
	f.store.AssertCalled(t, "UpdateDocumentStatus", mock.Anything, "a1", models.StatusFailed, mock.Anything)
}

func TestProcessMissingFileSetsFailed(t *testing.T) {
	f := newProcessorFixture(t, nil)

	doc := &models.Document{
		DocumentID: "d1",
		FileName:   "ghost.txt",
		FileType:   models.FileTypeText,
		FilePath:   "uploads/ghost.txt",
	}
	f.store.On("GetDocument", mock.Anything, "d1").Return(doc, nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "d1", models.StatusProcessing, "").Return(nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "d1", models.StatusFailed, mock.Anything).Return(nil)

	err := f.processor.Process(context.Background(), "d1")
	assert.Error(t, err)
	f.store.AssertCalled(t, "UpdateDocumentStatus", mock.Anything, "d1", models.StatusFailed, mock.Anything)
	assert.Equal(t, 0, f.index.Stats().TotalVectors)
}

func TestProcessEmptyDocumentFails(t *testing.T) {
	f := newProcessorFixture(t, nil)

	doc := &models.Document{
		DocumentID: "d1",
		FileName:   "empty.txt",
		FileType:   models.FileTypeText,
		FilePath:   "uploads/empty.txt",
	}
	f.blobs.files["uploads/empty.txt"] = []byte("   ")

	f.store.On("GetDocument", mock.Anything, "d1").Return(doc, nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "d1", models.StatusProcessing, "").Return(nil)
	f.store.On("UpdateDocumentStatus", mock.Anything, "d1", models.StatusFailed, mock.Anything).Return(nil)

	err := f.processor.Process(context.Background(), "d1")
	assert.Error(t, err)
}

func TestDeleteDocumentCascades(t *testing.T) {
	f := newProcessorFixture(t, nil)

	// 先摄取两个文档
	for _, id := range []string{"d1", "d2"} {
		doc := &models.Document{
			DocumentID: id,
			FileName:   id + ".txt",
			FileType:   models.FileTypeText,
			FilePath:   "uploads/" + id + ".txt",
		}
		f.blobs.files[doc.FilePath] = []byte("content of document " + id)
		f.store.On("GetDocument", mock.Anything, id).Return(doc, nil)
		f.store.On("UpdateDocumentStatus", mock.Anything, id, models.StatusProcessing, "").Return(nil)
		f.store.On("UpdateDocumentStatus", mock.Anything, id, models.StatusCompleted, "").Return(nil)
		f.store.On("UpdateDocument", mock.Anything, doc).Return(nil)
		f.store.On("CreateChunks", mock.Anything, mock.Anything).Return(nil)
		require.NoError(t, f.processor.Process(context.Background(), id))
	}
	totalBefore := f.index.Stats().TotalVectors
	require.Greater(t, totalBefore, 0)

	f.store.On("ChunksByDocument", mock.Anything, "d1").Return([]models.Chunk{{ChunkID: "d1_chunk_0"}}, nil)
	f.store.On("DeleteChunksByDocument", mock.Anything, "d1").Return(nil)
	f.store.On("DeleteDocument", mock.Anything, "d1").Return(nil)

	err := f.processor.DeleteDocument(context.Background(), "d1")
	assert.NoError(t, err)

	assert.Less(t, f.index.Stats().TotalVectors, totalBefore)
	_, exists := f.blobs.files["uploads/d1.txt"]
	assert.False(t, exists)

	f.store.AssertCalled(t, "DeleteChunksByDocument", mock.Anything, "d1")
	f.store.AssertCalled(t, "DeleteDocument", mock.Anything, "d1")
}

func TestProcessPendingRunsAll(t *testing.T) {
	f := newProcessorFixture(t, nil)

	pending := []models.Document{
		{DocumentID: "p1"},
		{DocumentID: "p2"},
	}
	f.store.On("ListDocumentsByStatus", mock.Anything, models.StatusPending).Return(pending, nil)

	for _, id := range []string{"p1", "p2"} {
		doc := &models.Document{
			DocumentID: id,
			FileName:   id + ".txt",
			FileType:   models.FileTypeText,
			FilePath:   "uploads/" + id + ".txt",
		}
		f.blobs.files[doc.FilePath] = []byte("pending document " + id)
		f.store.On("GetDocument", mock.Anything, id).Return(doc, nil)
		f.store.On("UpdateDocumentStatus", mock.Anything, id, models.StatusProcessing, "").Return(nil)
		f.store.On("UpdateDocumentStatus", mock.Anything, id, models.StatusCompleted, "").Return(nil)
		f.store.On("UpdateDocument", mock.Anything, doc).Return(nil)
		f.store.On("CreateChunks", mock.Anything, mock.Anything).Return(nil)
	}

	err := f.processor.ProcessPending(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, f.index.Stats().TotalVectors)
}

func TestProcessPendingEmpty(t *testing.T) {
	f := newProcessorFixture(t, nil)

	f.store.On("ListDocumentsByStatus", mock.Anything, models.StatusPending).
		Return([]models.Document{}, nil)

	assert.NoError(t, f.processor.ProcessPending(context.Background()))
}

func TestRegisterDocumentStoresBlobAndRecord(t *testing.T) {
	f := newProcessorFixture(t, nil)
	f.store.On("CreateDocument", mock.Anything, mock.AnythingOfType("*models.Document")).Return(nil)

	data := []byte("quarterly financial report")
	doc, err := f.processor.RegisterDocument(context.Background(), "u1", "report.pdf", data)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.DocumentID)
	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, models.FileTypeText, doc.FileType)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, int64(len(data)), doc.FileSize)
	assert.Equal(t, "application/pdf", doc.MimeType)
	assert.Contains(t, doc.FilePath, doc.DocumentID)
	assert.Contains(t, doc.FilePath, "report.pdf")

	stored, err := f.blobs.Fetch(context.Background(), doc.FilePath)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	f.store.AssertExpectations(t)
}

func TestRegisterDocumentAudioType(t *testing.T) {
	f := newProcessorFixture(t, nil)
	f.store.On("CreateDocument", mock.Anything, mock.Anything).Return(nil)

	doc, err := f.processor.RegisterDocument(context.Background(), "u1", "meeting.mp3", []byte("riff"))
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeAudio, doc.FileType)
}

func TestRegisterDocumentRejectsUnknownExtension(t *testing.T) {
	f := newProcessorFixture(t, nil)

	_, err := f.processor.RegisterDocument(context.Background(), "u1", "payload.exe", []byte("mz"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, f.blobs.files)
	f.store.AssertNotCalled(t, "CreateDocument", mock.Anything, mock.Anything)
}

func TestRegisterDocumentRejectsEmptyFile(t *testing.T) {
	f := newProcessorFixture(t, nil)

	_, err := f.processor.RegisterDocument(context.Background(), "u1", "empty.txt", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRegisterDocumentCleansBlobOnStoreFailure(t *testing.T) {
	f := newProcessorFixture(t, nil)
	f.store.On("CreateDocument", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := f.processor.RegisterDocument(context.Background(), "u1", "notes.txt", []byte("text"))
	require.Error(t, err)
	assert.Empty(t, f.blobs.files)
}
