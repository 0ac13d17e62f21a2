package cognito

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	cognitocore "github.com/nimbuslocal/nimbus/internal/core/cognito"
)

const namespace = "com.amazonaws.cognito.identity.provider"

type Handler struct {
	service *cognitocore.Service
}

func NewHandler(service *cognitocore.Service) *Handler {
	return &Handler{service: service}
}

type userPoolType struct {
	Id               string  `json:"Id"`
	Arn              string  `json:"Arn"`
	Name             string  `json:"Name"`
	CreationDate     float64 `json:"CreationDate"`
	LastModifiedDate float64 `json:"LastModifiedDate"`
	Status           string  `json:"Status"`
}

func poolType(pool *cognitocore.UserPool) userPoolType {
	return userPoolType{
		Id:               pool.ID,
		Arn:              pool.ARN,
		Name:             pool.Name,
		CreationDate:     pool.CreatedAt,
		LastModifiedDate: pool.CreatedAt,
		Status:           "Enabled",
	}
}

type userType struct {
	Username             string                      `json:"Username"`
	Attributes           []cognitocore.AttributeType `json:"Attributes,omitempty"`
	UserAttributes       []cognitocore.AttributeType `json:"UserAttributes,omitempty"`
	Enabled              bool                        `json:"Enabled"`
	UserStatus           string                      `json:"UserStatus"`
	UserCreateDate       float64                     `json:"UserCreateDate"`
	UserLastModifiedDate float64                     `json:"UserLastModifiedDate"`
}

func user(u *cognitocore.User, asAdminGet bool) userType {
	out := userType{
		Username:             u.Username,
		Enabled:              u.Enabled,
		UserStatus:           u.Status,
		UserCreateDate:       u.CreatedAt,
		UserLastModifiedDate: u.CreatedAt,
	}
	attrs := append([]cognitocore.AttributeType{{Name: "sub", Value: u.Sub}}, u.Attributes...)
	if asAdminGet {
		out.UserAttributes = attrs
	} else {
		out.Attributes = attrs
	}
	return out
}

type groupType struct {
	GroupName    string  `json:"GroupName"`
	Description  string  `json:"Description,omitempty"`
	Precedence   int     `json:"Precedence,omitempty"`
	CreationDate float64 `json:"CreationDate"`
}

func group(g *cognitocore.Group) groupType {
	return groupType{
		GroupName:    g.GroupName,
		Description:  g.Description,
		Precedence:   g.Precedence,
		CreationDate: g.CreatedAt,
	}
}

type clientType struct {
	UserPoolId   string `json:"UserPoolId"`
	ClientId     string `json:"ClientId"`
	ClientName   string `json:"ClientName"`
	ClientSecret string `json:"ClientSecret,omitempty"`
}

// Dispatch routes a JSON-protocol action to the identity service.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		PoolName          string                      `json:"PoolName"`
		UserPoolId        string                      `json:"UserPoolId"`
		Username          string                      `json:"Username"`
		Password          string                      `json:"Password"`
		Permanent         bool                        `json:"Permanent"`
		TemporaryPassword string                      `json:"TemporaryPassword"`
		UserAttributes    []cognitocore.AttributeType `json:"UserAttributes"`
		ClientName        string                      `json:"ClientName"`
		ClientId          string                      `json:"ClientId"`
		GenerateSecret    bool                        `json:"GenerateSecret"`
		GroupName         string                      `json:"GroupName"`
		Description       string                      `json:"Description"`
		Precedence        int                         `json:"Precedence"`
		ConfirmationCode  string                      `json:"ConfirmationCode"`
		AuthFlow          string                      `json:"AuthFlow"`
		AuthParameters    map[string]string           `json:"AuthParameters"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}

	var out any
	var err error

	switch action {
	case "CreateUserPool":
		var pool *cognitocore.UserPool
		pool, err = h.service.CreateUserPool(req.PoolName)
		if err == nil {
			out = map[string]any{"UserPool": poolType(pool)}
		}
	case "DeleteUserPool":
		err = h.service.DeleteUserPool(req.UserPoolId)
	case "DescribeUserPool":
		var pool *cognitocore.UserPool
		pool, err = h.service.DescribeUserPool(req.UserPoolId)
		if err == nil {
			out = map[string]any{"UserPool": poolType(pool)}
		}
	case "ListUserPools":
		pools := h.service.ListUserPools()
		entries := make([]userPoolType, len(pools))
		for i, p := range pools {
			entries[i] = poolType(p)
		}
		out = map[string]any{"UserPools": entries}
	case "AdminCreateUser":
		var u *cognitocore.User
		u, err = h.service.AdminCreateUser(req.UserPoolId, req.Username, req.UserAttributes, req.TemporaryPassword)
		if err == nil {
			out = map[string]any{"User": user(u, false)}
		}
	case "AdminDeleteUser":
		err = h.service.AdminDeleteUser(req.UserPoolId, req.Username)
	case "AdminGetUser":
		var u *cognitocore.User
		u, err = h.service.AdminGetUser(req.UserPoolId, req.Username)
		if err == nil {
			out = user(u, true)
		}
	case "AdminSetUserPassword":
		err = h.service.AdminSetUserPassword(req.UserPoolId, req.Username, req.Password, req.Permanent)
	case "AdminEnableUser":
		err = h.service.AdminEnableUser(req.UserPoolId, req.Username)
	case "AdminDisableUser":
		err = h.service.AdminDisableUser(req.UserPoolId, req.Username)
	case "AdminResetUserPassword":
		err = h.service.AdminResetUserPassword(req.UserPoolId, req.Username)
	case "AdminUpdateUserAttributes":
		err = h.service.AdminUpdateUserAttributes(req.UserPoolId, req.Username, req.UserAttributes)
	case "ListUsers":
		var users []*cognitocore.User
		users, err = h.service.ListUsers(req.UserPoolId)
		if err == nil {
			entries := make([]userType, len(users))
			for i, u := range users {
				entries[i] = user(u, false)
			}
			out = map[string]any{"Users": entries}
		}
	case "CreateUserPoolClient":
		var client *cognitocore.PoolClient
		client, err = h.service.CreateUserPoolClient(req.UserPoolId, req.ClientName, req.GenerateSecret)
		if err == nil {
			out = map[string]any{"UserPoolClient": clientType{
				UserPoolId:   req.UserPoolId,
				ClientId:     client.ClientID,
				ClientName:   client.ClientName,
				ClientSecret: client.ClientSecret,
			}}
		}
	case "DeleteUserPoolClient":
		err = h.service.DeleteUserPoolClient(req.UserPoolId, req.ClientId)
	case "DescribeUserPoolClient":
		var client *cognitocore.PoolClient
		client, err = h.service.DescribeUserPoolClient(req.UserPoolId, req.ClientId)
		if err == nil {
			out = map[string]any{"UserPoolClient": clientType{
				UserPoolId:   req.UserPoolId,
				ClientId:     client.ClientID,
				ClientName:   client.ClientName,
				ClientSecret: client.ClientSecret,
			}}
		}
	case "ListUserPoolClients":
		var clients []*cognitocore.PoolClient
		clients, err = h.service.ListUserPoolClients(req.UserPoolId)
		if err == nil {
			entries := make([]clientType, len(clients))
			for i, c := range clients {
				entries[i] = clientType{UserPoolId: req.UserPoolId, ClientId: c.ClientID, ClientName: c.ClientName}
			}
			out = map[string]any{"UserPoolClients": entries}
		}
	case "CreateGroup":
		var g *cognitocore.Group
		g, err = h.service.CreateGroup(req.UserPoolId, req.GroupName, req.Description, req.Precedence)
		if err == nil {
			out = map[string]any{"Group": group(g)}
		}
	case "DeleteGroup":
		err = h.service.DeleteGroup(req.UserPoolId, req.GroupName)
	case "GetGroup":
		var g *cognitocore.Group
		g, err = h.service.GetGroup(req.UserPoolId, req.GroupName)
		if err == nil {
			out = map[string]any{"Group": group(g)}
		}
	case "ListGroups":
		var groups []*cognitocore.Group
		groups, err = h.service.ListGroups(req.UserPoolId)
		if err == nil {
			entries := make([]groupType, len(groups))
			for i, g := range groups {
				entries[i] = group(g)
			}
			out = map[string]any{"Groups": entries}
		}
	case "AdminAddUserToGroup":
		err = h.service.AdminAddUserToGroup(req.UserPoolId, req.Username, req.GroupName)
	case "AdminRemoveUserFromGroup":
		err = h.service.AdminRemoveUserFromGroup(req.UserPoolId, req.Username, req.GroupName)
	case "AdminListGroupsForUser":
		var groups []*cognitocore.Group
		groups, err = h.service.AdminListGroupsForUser(req.UserPoolId, req.Username)
		if err == nil {
			entries := make([]groupType, len(groups))
			for i, g := range groups {
				entries[i] = group(g)
			}
			out = map[string]any{"Groups": entries}
		}
	case "ListUsersInGroup":
		var users []*cognitocore.User
		users, err = h.service.ListUsersInGroup(req.UserPoolId, req.GroupName)
		if err == nil {
			entries := make([]userType, len(users))
			for i, u := range users {
				entries[i] = user(u, false)
			}
			out = map[string]any{"Users": entries}
		}
	case "SignUp":
		var u *cognitocore.User
		u, err = h.service.SignUp(req.UserPoolId, req.ClientId, req.Username, req.Password, req.UserAttributes)
		if err == nil {
			out = map[string]any{"UserConfirmed": false, "UserSub": u.Sub}
		}
	case "ConfirmSignUp":
		err = h.service.ConfirmSignUp(req.UserPoolId, req.Username, req.ConfirmationCode)
	case "ForgotPassword":
		err = h.service.ForgotPassword(req.UserPoolId, req.Username)
		if err == nil {
			out = map[string]any{"CodeDeliveryDetails": map[string]string{
				"Destination":       req.Username,
				"DeliveryMedium":    "EMAIL",
				"AttributeName":     "email",
			}}
		}
	case "ConfirmForgotPassword":
		err = h.service.ConfirmForgotPassword(req.UserPoolId, req.Username, req.ConfirmationCode, req.Password)
	case "InitiateAuth", "AdminInitiateAuth":
		username := req.AuthParameters["USERNAME"]
		password := req.AuthParameters["PASSWORD"]
		var result *cognitocore.AuthResult
		result, err = h.service.InitiateAuth(req.UserPoolId, req.ClientId, username, password)
		if err == nil {
			out = map[string]any{"AuthenticationResult": result}
		}
	default:
		err = awserr.New("UnknownOperationException", http.StatusBadRequest, "Unknown operation: "+action)
	}

	if err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, out)
}
