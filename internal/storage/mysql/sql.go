package mysql

// LAST_INSERT_ID(id) makes LastInsertId report the existing row's id on update.
const upsertPropertySQL = `
INSERT INTO properties
  (external_id, title, slug, description, country, city, address, lat, lng,
   bedrooms, bathrooms, max_guests, base_price, currency, thumbnail_url,
   gallery, amenities, status, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  id            = LAST_INSERT_ID(id),
  title         = VALUES(title),
  slug          = VALUES(slug),
  description   = VALUES(description),
  country       = VALUES(country),
  city          = VALUES(city),
  address       = VALUES(address),
  lat           = VALUES(lat),
  lng           = VALUES(lng),
  bedrooms      = VALUES(bedrooms),
  bathrooms     = VALUES(bathrooms),
  max_guests    = VALUES(max_guests),
  base_price    = VALUES(base_price),
  currency      = VALUES(currency),
  thumbnail_url = VALUES(thumbnail_url),
  gallery       = VALUES(gallery),
  amenities     = VALUES(amenities),
  status        = VALUES(status),
  raw           = VALUES(raw),
  updated_at    = CURRENT_TIMESTAMP
`

const propertyColumns = `
  p.id, p.external_id, p.title, p.slug, p.description, p.country, p.city,
  p.address, p.lat, p.lng, p.bedrooms, p.bathrooms, p.max_guests,
  p.base_price, p.currency, p.thumbnail_url, p.gallery, p.amenities,
  p.status, p.updated_at`

const getPropertySQL = `SELECT` + propertyColumns + `
FROM properties p
WHERE p.id = ?`

const getPropertyBySlugSQL = `SELECT` + propertyColumns + `
FROM properties p
WHERE p.slug = ?`

const listActivePropertiesSQL = `SELECT` + propertyColumns + `
FROM properties p
WHERE p.status = 'active'
ORDER BY p.id`

const listAmenitiesSQL = `SELECT amenities FROM properties WHERE status = 'active'`

// -----------------------------------------------------------------------------
// CALENDAR
// -----------------------------------------------------------------------------

const deleteRatesSQL = `DELETE FROM rates WHERE property_id = ? AND date >= ? AND date < ?`

const deleteAvailabilitySQL = `DELETE FROM availability WHERE property_id = ? AND date >= ? AND date < ?`

const insertRatesPrefix = "INSERT INTO rates (property_id, date, price, min_nights, max_guests, currency) VALUES "

const insertAvailabilityPrefix = "INSERT INTO availability (property_id, date, is_booked, is_available) VALUES "

const getRatesSQL = `
SELECT property_id, date, price, min_nights, max_guests, currency
FROM rates
WHERE property_id = ? AND date >= ? AND date < ?
ORDER BY date`

const getAvailabilitySQL = `
SELECT property_id, date, is_booked, is_available
FROM availability
WHERE property_id = ? AND date >= ? AND date < ?
ORDER BY date`

// Nights with no availability row are inserted as booked, matching the
// fail-closed read side.
const markBookedPrefix = "INSERT INTO availability (property_id, date, is_booked, is_available) VALUES "

const markBookedOnDup = " ON DUPLICATE KEY UPDATE is_booked = VALUES(is_booked), is_available = VALUES(is_available)"

// -----------------------------------------------------------------------------
// RESERVATIONS
// -----------------------------------------------------------------------------

const insertReservationSQL = `
INSERT INTO reservations
  (order_ref, external_id, property_id, checkin, checkout, guests, amount,
   currency, guest_name, guest_email, status, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const reservationColumns = `
  id, order_ref, external_id, property_id, checkin, checkout, guests,
  amount, currency, guest_name, guest_email, status, created_at`

const getReservationSQL = `SELECT` + reservationColumns + ` FROM reservations WHERE id = ?`

const getReservationByOrderSQL = `SELECT` + reservationColumns + ` FROM reservations WHERE order_ref = ?`

const lockReservationSQL = `SELECT property_id, checkin, checkout, status FROM reservations WHERE id = ? FOR UPDATE`

const cancelReservationSQL = `UPDATE reservations SET status = 'cancelled' WHERE id = ?`

const freeNightsSQL = `
UPDATE availability SET is_booked = 0, is_available = 1
WHERE property_id = ? AND date >= ? AND date < ?`

// -----------------------------------------------------------------------------
// SYNC LOG
// -----------------------------------------------------------------------------

const insertLogSQL = `INSERT INTO sync_logs (action, status, message) VALUES (?, ?, ?)`

// The derived table works around MySQL's "LIMIT in subquery" restriction.
// When fewer than keep rows exist the subquery is NULL and nothing is deleted.
const trimLogsSQL = `
DELETE FROM sync_logs
WHERE id < (
  SELECT id FROM (
    SELECT id FROM sync_logs ORDER BY id DESC LIMIT 1 OFFSET ?
  ) AS keep_from
)`

const recentLogsSQL = `
SELECT id, action, status, message, created_at
FROM sync_logs
ORDER BY id DESC
LIMIT ?`
