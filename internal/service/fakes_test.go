package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"zhiwen-go/internal/model"
	"zhiwen-go/pkg/llm"
	"zhiwen-go/pkg/tasks"
)

// ---- 嵌入供应商 ----

type fakeEmbeddingClient struct {
	mu          sync.Mutex
	batchCalls  [][]string
	singleCalls []string
	// errs 按调用顺序弹出，nil 表示该次调用成功。
	errs []error
}

func (f *fakeEmbeddingClient) popErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func fakeVectorFor(text string) []float32 {
	return []float32{float32(len([]rune(text))), 1}
}

func (f *fakeEmbeddingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleCalls = append(f.singleCalls, text)
	if err := f.popErr(); err != nil {
		return nil, err
	}
	return fakeVectorFor(text), nil
}

func (f *fakeEmbeddingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls = append(f.batchCalls, append([]string(nil), texts...))
	if err := f.popErr(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = fakeVectorFor(t)
	}
	return vectors, nil
}

// ---- 向量索引 ----

type fakeVectorIndex struct {
	mu           sync.Mutex
	indexed      []model.ChunkDocument
	indexErr     error
	hits         []model.ChunkHit
	searchErr    error
	searchCalls  int
	lastVector   []float32
	lastFilter   model.VectorFilter
	lastK        int
	deletedDocs  []string
	deletedColls []string
}

func (f *fakeVectorIndex) IndexChunk(ctx context.Context, doc model.ChunkDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, doc)
	return nil
}

func (f *fakeVectorIndex) DeleteByDocumentID(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, documentID)
	return nil
}

func (f *fakeVectorIndex) DeleteByCollectionID(ctx context.Context, collectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedColls = append(f.deletedColls, collectionID)
	return nil
}

func (f *fakeVectorIndex) SearchByVector(ctx context.Context, vector []float32, filter model.VectorFilter, k int) ([]model.ChunkHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastVector = vector
	f.lastFilter = filter
	f.lastK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

// ---- 分块仓库 ----

type fakeChunkRepo struct {
	mu        sync.Mutex
	byID      map[string]model.Chunk
	updateErr error
	updated   []string
}

func newFakeChunkRepo(chunks ...model.Chunk) *fakeChunkRepo {
	repo := &fakeChunkRepo{byID: make(map[string]model.Chunk)}
	for _, c := range chunks {
		repo.byID[c.ID] = c
	}
	return repo
}

func (f *fakeChunkRepo) BatchCreate(chunks []model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.byID[c.ID] = c
	}
	return nil
}

func (f *fakeChunkRepo) FindByID(id string) (*model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (f *fakeChunkRepo) FindByIDs(ids []string) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chunks []model.Chunk
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func (f *fakeChunkRepo) FindByDocumentOrdered(documentID string) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chunks []model.Chunk
	for _, c := range f.byID {
		if c.DocumentID == documentID {
			chunks = append(chunks, c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

func (f *fakeChunkRepo) UpdateEmbedding(id string, embedding model.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	c, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Embedding = embedding
	f.byID[id] = c
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeChunkRepo) DeleteByDocument(documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.byID {
		if c.DocumentID == documentID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeChunkRepo) DeleteByDocuments(documentIDs []string) error {
	for _, id := range documentIDs {
		if err := f.DeleteByDocument(id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeChunkRepo) ReplaceForDocument(documentID string, chunks []model.Chunk) error {
	if err := f.DeleteByDocument(documentID); err != nil {
		return err
	}
	return f.BatchCreate(chunks)
}

func (f *fakeChunkRepo) CountByDocument(documentID string) (int64, error) {
	chunks, _ := f.FindByDocumentOrdered(documentID)
	return int64(len(chunks)), nil
}

// ---- 文档仓库 ----

type fakeDocumentRepo struct {
	mu        sync.Mutex
	byID      map[string]model.Document
	updates   []map[string]interface{}
	createErr error
	updateErr error
}

func newFakeDocumentRepo(documents ...model.Document) *fakeDocumentRepo {
	repo := &fakeDocumentRepo{byID: make(map[string]model.Document)}
	for _, d := range documents {
		repo.byID[d.ID] = d
	}
	return repo
}

func (f *fakeDocumentRepo) Create(document *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.byID[document.ID] = *document
	return nil
}

func (f *fakeDocumentRepo) FindByID(id string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &d, nil
}

func (f *fakeDocumentRepo) FindByIDs(ids []string) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var documents []model.Document
	for _, id := range ids {
		if d, ok := f.byID[id]; ok {
			documents = append(documents, d)
		}
	}
	return documents, nil
}

func (f *fakeDocumentRepo) FindWithPagination(collectionID string, offset, limit int) ([]model.Document, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var documents []model.Document
	for _, d := range f.byID {
		if d.CollectionID == collectionID {
			documents = append(documents, d)
		}
	}
	return documents, int64(len(documents)), nil
}

func (f *fakeDocumentRepo) UpdateFields(id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.updates = append(f.updates, fields)
	return nil
}

func (f *fakeDocumentRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeDocumentRepo) DeleteByCollection(collectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.byID {
		if d.CollectionID == collectionID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeDocumentRepo) ListIDsByCollection(collectionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, d := range f.byID {
		if d.CollectionID == collectionID {
			ids = append(ids, d.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ---- 向量缓存 ----

type fakeEmbeddingCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	getErr  error
	setErr  error
	gets    int
	sets    int
}

func newFakeEmbeddingCache() *fakeEmbeddingCache {
	return &fakeEmbeddingCache{entries: make(map[string][]float32)}
}

func (f *fakeEmbeddingCache) Get(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.entries[text], nil
}

func (f *fakeEmbeddingCache) Set(ctx context.Context, text string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[text] = embedding
	return nil
}

// ---- 检索服务 ----

type fakeSearchService struct {
	mu            sync.Mutex
	results       []model.SearchResult
	err           error
	lastQuery     string
	lastScope     model.VectorFilter
	lastLimit     int
	lastThreshold float64
}

func (f *fakeSearchService) Search(ctx context.Context, queryText string, scope model.VectorFilter, limit int, threshold float64) ([]model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = queryText
	f.lastScope = scope
	f.lastLimit = limit
	f.lastThreshold = threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeSearchService) SearchByEmbedding(ctx context.Context, vector []float32, scope model.VectorFilter, limit int, threshold float64) ([]model.SearchResult, error) {
	return f.Search(ctx, "", scope, limit, threshold)
}

// ---- LLM 客户端 ----

type fakeLLMClient struct {
	mu           sync.Mutex
	deltas       []string
	streamErr    error // 发完全部增量后返回的错误
	failAfter    int   // streamErr 非空时，发出多少个增量后失败
	generated    string
	generateErr  error
	lastMessages []llm.Message
}

func (f *fakeLLMClient) Stream(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, emit func(delta string) error) error {
	f.mu.Lock()
	f.lastMessages = append([]llm.Message(nil), messages...)
	f.mu.Unlock()

	for i, delta := range f.deltas {
		if f.streamErr != nil && i >= f.failAfter {
			return f.streamErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(delta); err != nil {
			return err
		}
	}
	if f.streamErr != nil {
		return f.streamErr
	}
	return nil
}

func (f *fakeLLMClient) Generate(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.lastMessages = append([]llm.Message(nil), messages...)
	f.mu.Unlock()
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generated, nil
}

// ---- 问答记录仓库 ----

type fakeQueryRepo struct {
	mu        sync.Mutex
	created   []*model.Query
	createErr error
	byID      map[string]model.Query
}

func newFakeQueryRepo() *fakeQueryRepo {
	return &fakeQueryRepo{byID: make(map[string]model.Query)}
}

func (f *fakeQueryRepo) Create(query *model.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, query)
	f.byID[query.ID] = *query
	return nil
}

func (f *fakeQueryRepo) FindByID(id string) (*model.Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &q, nil
}

func (f *fakeQueryRepo) FindWithPagination(userID uint, offset, limit int) ([]model.Query, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var queries []model.Query
	for _, q := range f.byID {
		if q.UserID == userID {
			queries = append(queries, q)
		}
	}
	return queries, int64(len(queries)), nil
}

func (f *fakeQueryRepo) Update(query *model.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[query.ID] = *query
	return nil
}

// ---- 集合仓库 ----

type fakeCollectionRepo struct {
	mu          sync.Mutex
	collections map[string]model.Collection
	members     map[string]map[uint]model.CollectionRole
	findErr     error
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{
		collections: make(map[string]model.Collection),
		members:     make(map[string]map[uint]model.CollectionRole),
	}
}

func (f *fakeCollectionRepo) addCollection(c model.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[c.ID] = c
	if _, ok := f.members[c.ID]; !ok {
		f.members[c.ID] = make(map[uint]model.CollectionRole)
	}
	f.members[c.ID][c.OwnerID] = model.RoleOwner
}

func (f *fakeCollectionRepo) Create(collection *model.Collection) error {
	f.addCollection(*collection)
	return nil
}

func (f *fakeCollectionRepo) FindByID(id string) (*model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.collections[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (f *fakeCollectionRepo) Update(collection *model.Collection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[collection.ID] = *collection
	return nil
}

func (f *fakeCollectionRepo) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, id)
	delete(f.members, id)
	return nil
}

func (f *fakeCollectionRepo) FindWithPagination(userID uint, offset, limit int) ([]model.Collection, int64, error) {
	ids, err := f.AccessibleIDs(userID)
	if err != nil {
		return nil, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var collections []model.Collection
	for _, id := range ids {
		collections = append(collections, f.collections[id])
	}
	return collections, int64(len(collections)), nil
}

func (f *fakeCollectionRepo) AccessibleIDs(userID uint) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0)
	for id, c := range f.collections {
		if c.IsPublic {
			ids = append(ids, id)
			continue
		}
		if _, ok := f.members[id][userID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeCollectionRepo) AddMember(member *model.CollectionMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[member.CollectionID]; !ok {
		f.members[member.CollectionID] = make(map[uint]model.CollectionRole)
	}
	f.members[member.CollectionID][member.UserID] = member.Role
	return nil
}

func (f *fakeCollectionRepo) FindMember(collectionID string, userID uint) (*model.CollectionMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.members[collectionID][userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.CollectionMember{CollectionID: collectionID, UserID: userID, Role: role}, nil
}

func (f *fakeCollectionRepo) UpdateMemberRole(collectionID string, userID uint, role model.CollectionRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[collectionID][userID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.members[collectionID][userID] = role
	return nil
}

func (f *fakeCollectionRepo) RemoveMember(collectionID string, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[collectionID], userID)
	return nil
}

func (f *fakeCollectionRepo) ListMembers(collectionID string) ([]model.CollectionMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []model.CollectionMember
	for userID, role := range f.members[collectionID] {
		members = append(members, model.CollectionMember{CollectionID: collectionID, UserID: userID, Role: role})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// ---- 用户仓库 ----

type fakeUserRepo struct {
	mu     sync.Mutex
	byID   map[uint]model.User
	nextID uint
}

func newFakeUserRepo(users ...model.User) *fakeUserRepo {
	repo := &fakeUserRepo{byID: make(map[uint]model.User), nextID: 1}
	for _, u := range users {
		repo.byID[u.ID] = u
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
	}
	return repo
}

func (f *fakeUserRepo) Create(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Username == user.Username {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = f.nextID
	f.nextID++
	f.byID[user.ID] = *user
	return nil
}

func (f *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByID(userID uint) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (f *fakeUserRepo) Update(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[user.ID] = *user
	return nil
}

// ---- token 黑名单 ----

type fakeTokenBlacklist struct {
	mu     sync.Mutex
	added  map[string]time.Duration
	addErr error
}

func newFakeTokenBlacklist() *fakeTokenBlacklist {
	return &fakeTokenBlacklist{added: make(map[string]time.Duration)}
}

func (f *fakeTokenBlacklist) Add(ctx context.Context, tokenString string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added[tokenString] = ttl
	return nil
}

func (f *fakeTokenBlacklist) Contains(ctx context.Context, tokenString string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.added[tokenString]
	return ok, nil
}

// ---- 对象存储 ----

type fakeObjectStore struct {
	mu              sync.Mutex
	objects         map[string][]byte
	putErr          error
	getErr          error
	removeErr       error
	presignErr      error
	removed         []string
	removedPrefixes []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeObjectStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("对象 %s 不存在", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) Remove(ctx context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.objects, objectName)
	f.removed = append(f.removed, objectName)
	return nil
}

func (f *fakeObjectStore) RemovePrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			delete(f.objects, name)
		}
	}
	f.removedPrefixes = append(f.removedPrefixes, prefix)
	return nil
}

func (f *fakeObjectStore) PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return fmt.Sprintf("https://minio.test/%s?expires=%d", objectName, int64(expiry.Seconds())), nil
}

// ---- 任务派发 ----

type fakeTaskDispatcher struct {
	mu          sync.Mutex
	dispatched  []tasks.DocumentProcessingTask
	dispatchErr error
}

func (f *fakeTaskDispatcher) ProduceDocumentTask(ctx context.Context, task tasks.DocumentProcessingTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dispatchErr != nil {
		return f.dispatchErr
	}
	f.dispatched = append(f.dispatched, task)
	return nil
}
