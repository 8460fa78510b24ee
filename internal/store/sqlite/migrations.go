package sqlite

// The migration list is append-only: shipped migrations are never edited,
// reordered, or renumbered. New schema changes get the next version number.

// Migration is one versioned schema change. Statements run in order inside a
// single transaction together with the ledger insert for the version.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// entityTables maps entity kinds to their table names in declaration order.
var entityTables = []string{"profiles", "products", "qa_records"}

// migrations is the full ordered migration history.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create entity tables",
		Statements: []string{
			`CREATE TABLE profiles (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				search_text TEXT NOT NULL DEFAULT '',
				data TEXT NOT NULL
			)`,
			`CREATE TABLE products (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				search_text TEXT NOT NULL DEFAULT '',
				data TEXT NOT NULL
			)`,
			`CREATE TABLE qa_records (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				search_text TEXT NOT NULL DEFAULT '',
				data TEXT NOT NULL
			)`,
		},
	},
	{
		Version: 2,
		Name:    "full-text index with sync triggers",
		Statements: []string{
			`CREATE VIRTUAL TABLE profiles_fts USING fts5(id UNINDEXED, search_text)`,
			`CREATE VIRTUAL TABLE products_fts USING fts5(id UNINDEXED, search_text)`,
			`CREATE VIRTUAL TABLE qa_records_fts USING fts5(id UNINDEXED, search_text)`,

			`CREATE TRIGGER profiles_fts_ai AFTER INSERT ON profiles BEGIN
				INSERT INTO profiles_fts(id, search_text) VALUES (new.id, new.search_text);
			END`,
			`CREATE TRIGGER profiles_fts_au AFTER UPDATE ON profiles BEGIN
				DELETE FROM profiles_fts WHERE id = old.id;
				INSERT INTO profiles_fts(id, search_text) VALUES (new.id, new.search_text);
			END`,
			`CREATE TRIGGER profiles_fts_ad AFTER DELETE ON profiles BEGIN
				DELETE FROM profiles_fts WHERE id = old.id;
			END`,

			`CREATE TRIGGER products_fts_ai AFTER INSERT ON products BEGIN
				INSERT INTO products_fts(id, search_text) VALUES (new.id, new.search_text);
			END`,
			`CREATE TRIGGER products_fts_au AFTER UPDATE ON products BEGIN
				DELETE FROM products_fts WHERE id = old.id;
				INSERT INTO products_fts(id, search_text) VALUES (new.id, new.search_text);
			END`,
			`CREATE TRIGGER products_fts_ad AFTER DELETE ON products BEGIN
				DELETE FROM products_fts WHERE id = old.id;
			END`,

			`CREATE TRIGGER qa_records_fts_ai AFTER INSERT ON qa_records BEGIN
				INSERT INTO qa_records_fts(id, search_text) VALUES (new.id, new.search_text);
			END`,
			`CREATE TRIGGER qa_records_fts_au AFTER UPDATE ON qa_records BEGIN
				DELETE FROM qa_records_fts WHERE id = old.id;
				INSERT INTO qa_records_fts(id, search_text) VALUES (new.id, new.search_text);
			END`,
			`CREATE TRIGGER qa_records_fts_ad AFTER DELETE ON qa_records BEGIN
				DELETE FROM qa_records_fts WHERE id = old.id;
			END`,
		},
	},
	{
		Version: 3,
		Name:    "secondary indexes",
		Statements: []string{
			`CREATE INDEX idx_profiles_source ON profiles(source)`,
			`CREATE INDEX idx_profiles_created_at ON profiles(created_at)`,
			`CREATE INDEX idx_products_source ON products(source)`,
			`CREATE INDEX idx_products_created_at ON products(created_at)`,
			`CREATE INDEX idx_qa_records_source ON qa_records(source)`,
			`CREATE INDEX idx_qa_records_created_at ON qa_records(created_at)`,
		},
	},
}
