package postgres

// Schema creates the memory table with a tsvector column kept current by a
// trigger. The 'simple' configuration does no stemming, which matches how
// the SQLite store tokenizes.
const Schema = `
CREATE TABLE IF NOT EXISTS memory (
    id BIGSERIAL PRIMARY KEY,
    content TEXT NOT NULL,
    category TEXT,
    importance INTEGER NOT NULL DEFAULT 5,
    created_at BIGINT NOT NULL,
    search_tsv tsvector
);

CREATE INDEX IF NOT EXISTS idx_memory_search_tsv ON memory USING GIN(search_tsv);
CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(category, importance DESC, created_at DESC);

CREATE OR REPLACE FUNCTION memory_tsv_update()
RETURNS TRIGGER AS $$
BEGIN
    NEW.search_tsv := to_tsvector('simple', COALESCE(NEW.content, '') || ' ' || COALESCE(NEW.category, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memory_tsv_trigger ON memory;
CREATE TRIGGER memory_tsv_trigger
    BEFORE INSERT OR UPDATE OF content, category ON memory
    FOR EACH ROW EXECUTE FUNCTION memory_tsv_update();
`

// rebuildTSV recomputes every search vector, covering rows written before
// the trigger existed.
const rebuildTSV = `UPDATE memory SET search_tsv = to_tsvector('simple', COALESCE(content, '') || ' ' || COALESCE(category, ''))`
