package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FundFlow API",
        "description": "Funding platform workflow and authorization engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and password management"},
        {"name": "Cases", "description": "Funding case lifecycle"},
        {"name": "Contributions", "description": "Donor pledge pipeline"},
        {"name": "Projects", "description": "Recurring funding projects and cycles"},
        {"name": "RBAC", "description": "Roles, permissions and assignments"},
        {"name": "Exports", "description": "CSV exports and donation receipts"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Tokens issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "Tokens refreshed"},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "responses": {
                    "204": {"description": "Session revoked"}
                }
            }
        },
        "/auth/password": {
            "put": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "responses": {
                    "204": {"description": "Password changed"}
                }
            }
        },
        "/cases": {
            "get": {
                "tags": ["Cases"],
                "summary": "List funding cases",
                "responses": {
                    "200": {"description": "Cases with pagination"}
                }
            },
            "post": {
                "tags": ["Cases"],
                "summary": "Open a funding case",
                "responses": {
                    "201": {"description": "Case created in DRAFT"}
                }
            }
        },
        "/cases/{id}": {
            "get": {
                "tags": ["Cases"],
                "summary": "Case detail",
                "responses": {
                    "200": {"description": "Case"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/cases/{id}/history": {
            "get": {
                "tags": ["Cases"],
                "summary": "Case status history",
                "responses": {
                    "200": {"description": "Transitions, oldest first"}
                }
            }
        },
        "/cases/{id}/status": {
            "put": {
                "tags": ["Cases"],
                "summary": "Transition case status",
                "responses": {
                    "200": {"description": "Case after transition"},
                    "409": {"description": "Concurrent status change"},
                    "422": {"description": "Transition not allowed"}
                }
            }
        },
        "/contributions": {
            "get": {
                "tags": ["Contributions"],
                "summary": "List contributions",
                "responses": {
                    "200": {"description": "Contributions with approval state"}
                }
            },
            "post": {
                "tags": ["Contributions"],
                "summary": "Submit a contribution",
                "responses": {
                    "201": {"description": "Contribution pending review"}
                }
            }
        },
        "/contributions/{id}": {
            "get": {
                "tags": ["Contributions"],
                "summary": "Contribution detail",
                "responses": {
                    "200": {"description": "Contribution with approval state"}
                }
            }
        },
        "/contributions/{id}/approve": {
            "post": {
                "tags": ["Contributions"],
                "summary": "Approve a pending contribution",
                "responses": {
                    "200": {"description": "Approved"},
                    "409": {"description": "Already reviewed"}
                }
            }
        },
        "/contributions/{id}/reject": {
            "post": {
                "tags": ["Contributions"],
                "summary": "Reject a pending contribution",
                "responses": {
                    "200": {"description": "Rejected"},
                    "409": {"description": "Already reviewed"}
                }
            }
        },
        "/contributions/{id}/resubmit": {
            "post": {
                "tags": ["Contributions"],
                "summary": "Resubmit a rejected contribution",
                "responses": {
                    "200": {"description": "Back to pending"},
                    "409": {"description": "Not rejected"}
                }
            }
        },
        "/contributions/{id}/revise": {
            "post": {
                "tags": ["Contributions"],
                "summary": "Replace a rejected contribution",
                "responses": {
                    "201": {"description": "Replacement created"},
                    "409": {"description": "Not rejected"}
                }
            }
        },
        "/contributions/{id}/receipt": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download donation receipt (PDF)",
                "responses": {
                    "200": {"description": "PDF payload"}
                }
            }
        },
        "/projects": {
            "get": {
                "tags": ["Projects"],
                "summary": "List projects",
                "responses": {
                    "200": {"description": "Projects"}
                }
            },
            "post": {
                "tags": ["Projects"],
                "summary": "Open a recurring project",
                "responses": {
                    "201": {"description": "Project with first cycle"}
                }
            }
        },
        "/projects/{id}": {
            "get": {
                "tags": ["Projects"],
                "summary": "Project detail with cycles",
                "responses": {
                    "200": {"description": "Project"}
                }
            },
            "delete": {
                "tags": ["Projects"],
                "summary": "Cancel a project",
                "responses": {
                    "204": {"description": "Cancelled"}
                }
            }
        },
        "/projects/{id}/advance": {
            "post": {
                "tags": ["Projects"],
                "summary": "Advance the funding cycle",
                "responses": {
                    "200": {"description": "Next cycle or completion"}
                }
            }
        },
        "/projects/{id}/pause": {
            "post": {
                "tags": ["Projects"],
                "summary": "Pause an active project",
                "responses": {
                    "204": {"description": "Paused"}
                }
            }
        },
        "/projects/{id}/resume": {
            "post": {
                "tags": ["Projects"],
                "summary": "Resume a paused project",
                "responses": {
                    "204": {"description": "Resumed"}
                }
            }
        },
        "/roles": {
            "get": {
                "tags": ["RBAC"],
                "summary": "List roles",
                "responses": {
                    "200": {"description": "Roles"}
                }
            },
            "post": {
                "tags": ["RBAC"],
                "summary": "Define a new role",
                "responses": {
                    "201": {"description": "Role created"}
                }
            }
        },
        "/permissions": {
            "get": {
                "tags": ["RBAC"],
                "summary": "List permissions",
                "responses": {
                    "200": {"description": "Permissions"}
                }
            }
        },
        "/users/{id}/roles": {
            "put": {
                "tags": ["RBAC"],
                "summary": "Replace a user's role assignments",
                "responses": {
                    "200": {"description": "Applied delta"},
                    "403": {"description": "Escalation blocked"}
                }
            }
        },
        "/users/{id}/grants": {
            "get": {
                "tags": ["RBAC"],
                "summary": "Effective roles and permissions",
                "responses": {
                    "200": {"description": "Resolved grants"}
                }
            }
        },
        "/users/{id}/refresh": {
            "post": {
                "tags": ["RBAC"],
                "summary": "Drop a user's cached grants",
                "responses": {
                    "204": {"description": "Cache entry dropped"}
                }
            }
        },
        "/ops/rbac/refresh": {
            "post": {
                "tags": ["RBAC"],
                "summary": "Flush every cached grants entry",
                "responses": {
                    "204": {"description": "Cache flushed"}
                }
            }
        },
        "/me/grants": {
            "get": {
                "tags": ["RBAC"],
                "summary": "Caller's effective grants",
                "responses": {
                    "200": {"description": "Resolved grants"}
                }
            }
        },
        "/exports/contributions": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export contributions as CSV",
                "responses": {
                    "200": {"description": "CSV payload"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
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
