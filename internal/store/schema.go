package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time      TEXT NOT NULL,
    invocation_args TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS label_records (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    src                 TEXT NOT NULL,
    seq                 INTEGER NOT NULL,
    val                 TEXT NOT NULL,
    target_uri          TEXT NOT NULL,
    target_cid          TEXT,
    neg                 INTEGER NOT NULL DEFAULT 0,
    create_timestamp    TEXT NOT NULL,
    expiry_timestamp    TEXT,
    signature           BLOB,
    run_id              INTEGER NOT NULL REFERENCES runs(id),
    last_seen_timestamp TEXT NOT NULL,
    UNIQUE (src, val, target_uri, seq)
);

CREATE INDEX IF NOT EXISTS idx_label_records_src ON label_records(src);

CREATE TABLE IF NOT EXISTS known_handles (
    did                 TEXT PRIMARY KEY,
    handle              TEXT NOT NULL,
    witnessed_timestamp TEXT NOT NULL
);
`
