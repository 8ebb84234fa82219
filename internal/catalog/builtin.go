package catalog

// Builtin returns the catalog for the Shopify-style order database. Pattern
// phrasings double as the utterances users actually say, so they are kept
// close to spoken English; placeholder braces mark extracted parameters.
func Builtin() *Catalog {
	return MustNew([]Entry{
		{
			Template: Template{
				Name: "customers_list",
				SQL: `SELECT customer_id, source_customer_id, customer_source, name, email, phone,
       address_1, address_2, address_3, country, postcode
FROM customers
ORDER BY customer_id`,
			},
			Patterns: []string{
				"show all customers",
				"list all customers",
				"display customers",
				"get customers",
				"view customers",
				"show customers",
				"show users",
				"display users",
			},
		},
		{
			Template: Template{
				Name: "customer_count",
				SQL:  `SELECT COUNT(DISTINCT customer_id) AS customer_count FROM customers`,
			},
			Patterns: []string{
				"how many live customers do we have",
				"how many customers are there",
				"show customer count",
				"how many customers",
				"count customers",
				"number of customers",
				"total number of customers",
			},
		},
		{
			Template: Template{
				Name: "orders_by_status",
				SQL: `SELECT order_status, COUNT(*) AS status_count
FROM orders
WHERE order_status IS NOT NULL
GROUP BY order_status`,
			},
			Patterns: []string{
				"how many sales orders do we have by status",
				"show orders by status",
				"count orders by status",
				"order status breakdown",
				"orders per status",
				"status distribution",
			},
		},
		{
			Template: Template{
				Name:   "order_status",
				SQL:    `SELECT order_status FROM orders WHERE order_id = $1`,
				Schema: []string{"order_id"},
			},
			Patterns: []string{
				"what is the status of order {order_id}",
				"status of order {order_id}",
				"order status {order_id}",
				"order {order_id} status",
				"check status of order {order_id}",
			},
		},
		{
			Template: Template{
				Name: "order_value",
				SQL: `SELECT currency, SUM(line_price) AS total_value
FROM order_lines
WHERE order_id = $1
GROUP BY currency`,
				Schema: []string{"order_id"},
			},
			Patterns: []string{
				"what is the value of order {order_id}",
				"value of order {order_id}",
				"total value of order {order_id}",
				"what is the total value of order {order_id}",
				"order {order_id} value",
				"check value of order {order_id}",
			},
		},
		{
			Template: Template{
				Name: "top_product",
				SQL: `SELECT source_product_id, SUM(quantity) AS total_quantity
FROM order_lines
WHERE source_product_id IS NOT NULL
GROUP BY source_product_id
ORDER BY SUM(quantity) DESC
LIMIT 1`,
			},
			Patterns: []string{
				"show popular product",
				"list best selling product",
				"top product",
				"most ordered product",
				"product popularity",
				"best seller",
				"what is the most popular product that has been ordered",
			},
		},
		{
			Template: Template{
				Name: "recent_orders",
				SQL: `SELECT o.order_id, o.customer_id, o.order_date, o.order_status,
       c.name AS customer_name,
       COUNT(ol.order_line_id) AS total_items,
       SUM(ol.line_price) AS total_amount,
       ol.currency
FROM orders o
LEFT JOIN customers c ON o.customer_id = c.customer_id
JOIN order_lines ol ON o.order_id = ol.order_id
GROUP BY o.order_id, o.customer_id, o.order_date, o.order_status, c.name, ol.currency
ORDER BY o.order_date DESC
LIMIT 10`,
			},
			Patterns: []string{
				"show recent orders",
				"list latest orders",
				"display recent orders",
				"get recent orders",
				"view latest orders",
				"show new orders",
			},
		},
	})
}
