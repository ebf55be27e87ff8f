package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Circulation API",
        "description": "Borrow/return lifecycle engine for library circulation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Borrow", "description": "Borrow transaction routing and controller transitions"},
        {"name": "Return", "description": "Batched return and loss processing"},
        {"name": "Reports", "description": "Overdue reporting"},
        {"name": "Settings", "description": "Circulation scheduler settings"}
    ],
    "paths": {
        "/borrow": {
            "get": {
                "tags": ["Borrow"],
                "summary": "List borrow transactions",
                "parameters": [
                    {"name": "role", "in": "query", "type": "string", "description": "Staff route filter (librarian or admin)"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Borrow"],
                "summary": "Submit a borrow request",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/borrow/{id}": {
            "get": {
                "tags": ["Borrow"],
                "summary": "Fetch one borrow transaction",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/borrow/borrower/{id}": {
            "get": {
                "tags": ["Borrow"],
                "summary": "List a borrower's transactions",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/borrow/{id}/due-date": {
            "get": {
                "tags": ["Borrow"],
                "summary": "Fetch the effective due date",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/borrow/{id}/slip": {
            "get": {
                "tags": ["Borrow"],
                "summary": "Download the borrow slip PDF",
                "parameters": [{"name": "id", "in": "path", "type": "integer", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/borrow/{id}/approve": {
            "put": {
                "tags": ["Borrow"],
                "summary": "Approve a pending transaction",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "role", "in": "query", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/borrow/{id}/reject": {
            "put": {
                "tags": ["Borrow"],
                "summary": "Reject a pending transaction",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "role", "in": "query", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/borrow/{id}/retrieved": {
            "put": {
                "tags": ["Borrow"],
                "summary": "Record borrower pickup",
                "parameters": [
                    {"name": "id", "in": "path", "type": "integer", "required": true},
                    {"name": "role", "in": "query", "type": "string", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/return": {
            "get": {
                "tags": ["Return"],
                "summary": "List return transactions",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Return"],
                "summary": "Record a batched return event",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/lost": {
            "post": {
                "tags": ["Return"],
                "summary": "Flag borrowed items as lost",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/reports/overdue": {
            "get": {
                "tags": ["Reports"],
                "summary": "Overdue borrow report",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "description": "csv or pdf"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/settings/circulation": {
            "get": {
                "tags": ["Settings"],
                "summary": "Fetch circulation settings",
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Settings"],
                "summary": "Update circulation settings",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
