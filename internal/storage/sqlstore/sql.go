package sqlstore

// Note: `text` is reserved; keep it quoted everywhere. Backticks work in MySQL and SQLite.

const productColumns = "id, article, name, last_checked, created_at"

const listProductsSQL = "SELECT " + productColumns + " FROM products ORDER BY id"

const getProductByArticleSQL = "SELECT " + productColumns + " FROM products WHERE article = ?"

const insertProductSQL = `
INSERT INTO products (article, name, created_at)
VALUES (?, ?, ?)
`

// reviews go with it through the FK's ON DELETE CASCADE
const deleteProductByArticleSQL = `DELETE FROM products WHERE article = ?`

const touchProductSQL = `UPDATE products SET last_checked = ? WHERE id = ?`

const reviewColumns = "id, product_id, external_id, rating, `text`, author, review_date, is_notified, created_at"

const reviewExistsSQL = `SELECT COUNT(*) FROM reviews WHERE external_id = ?`

const insertReviewSQL = "INSERT INTO reviews\n" +
	"  (product_id, external_id, rating, `text`, author, review_date, is_notified, created_at)\n" +
	"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

const markNotifiedSQL = `UPDATE reviews SET is_notified = 1 WHERE id = ?`

// Newest first; aligns with idx_reviews_product_date.
const listReviewsSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE product_id = ?
ORDER BY review_date DESC, id DESC
LIMIT ?`

const listPendingReviewsSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE product_id = ? AND is_notified = 0
ORDER BY id`
