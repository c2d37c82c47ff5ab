package sqlite

// memoryTable is the owned memory table. Earlier versions created it with a
// nullable created_at and no NOT NULL on importance; IF NOT EXISTS keeps
// such tables as they are and the mapper tolerates the NULLs.
const memoryTable = `
CREATE TABLE IF NOT EXISTS memory (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    category TEXT,
    importance INTEGER NOT NULL DEFAULT 5,
    created_at INTEGER NOT NULL
)`

const memoryCategoryIndex = `CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(category, importance DESC, created_at DESC)`

// memoryFTS indexes content and category as an external-content table over
// memory, so the text is stored once.
const memoryFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
    content,
    category,
    content='memory',
    content_rowid='id'
)`

var memoryTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS memory_ai AFTER INSERT ON memory BEGIN
    INSERT INTO memory_fts(rowid, content, category) VALUES (new.id, new.content, new.category);
END`,
	`CREATE TRIGGER IF NOT EXISTS memory_ad AFTER DELETE ON memory BEGIN
    INSERT INTO memory_fts(memory_fts, rowid, content, category) VALUES ('delete', old.id, old.content, old.category);
END`,
	`CREATE TRIGGER IF NOT EXISTS memory_au AFTER UPDATE ON memory BEGIN
    INSERT INTO memory_fts(memory_fts, rowid, content, category) VALUES ('delete', old.id, old.content, old.category);
    INSERT INTO memory_fts(rowid, content, category) VALUES (new.id, new.content, new.category);
END`,
}

// legacyDrops removes a content-only memory_fts and the triggers that feed
// it.
var legacyDrops = []string{
	`DROP TRIGGER IF EXISTS memory_ai`,
	`DROP TRIGGER IF EXISTS memory_ad`,
	`DROP TRIGGER IF EXISTS memory_au`,
	`DROP TABLE IF EXISTS memory_fts`,
}

const memoryRebuild = `INSERT INTO memory_fts(memory_fts) VALUES ('rebuild')`
