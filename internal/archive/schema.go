package archive

const schema = `
-- Append-only mirror of review logs, used for statistics and daily-load
-- queries. The JSON document remains the source of truth.
CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    card_path TEXT NOT NULL,
    queue_id TEXT NOT NULL,
    rating INTEGER NOT NULL,
    prev_state INTEGER NOT NULL,
    session_id TEXT,
    reviewed_at DATETIME NOT NULL,
    undone INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reviews_queue_time ON reviews(queue_id, reviewed_at);
CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_path);
`
