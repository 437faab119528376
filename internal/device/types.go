package device

// User is one access-control user as stored on the device.
type User struct {
	EmployeeNo string `json:"employeeNo"`
	Name       string `json:"name"`
	UserType   string `json:"userType,omitempty"`
}

type searchCond struct {
	SearchID             string `json:"searchID"`
	SearchResultPosition int    `json:"searchResultPosition"`
	MaxResults           int    `json:"maxResults"`
}

type searchRequest struct {
	UserInfoSearchCond searchCond `json:"UserInfoSearchCond"`
}

// searchResponse models the body of UserInfo/Search. responseStatusStrg is
// "MORE" while further pages remain, otherwise "OK" or "NO MATCH".
type searchResponse struct {
	UserInfoSearch struct {
		SearchID           string `json:"searchID"`
		ResponseStatusStrg string `json:"responseStatusStrg"`
		NumOfMatches       int    `json:"numOfMatches"`
		TotalMatches       int    `json:"totalMatches"`
		UserInfo           []User `json:"UserInfo"`
	} `json:"UserInfoSearch"`
}

type recordRequest struct {
	UserInfo User `json:"UserInfo"`
}

type employeeNo struct {
	EmployeeNo string `json:"employeeNo"`
}

type deleteRequest struct {
	UserInfoDelCond struct {
		EmployeeNoList []employeeNo `json:"EmployeeNoList"`
	} `json:"UserInfoDelCond"`
}

// statusResponse is the ISAPI ResponseStatus body returned on most errors.
type statusResponse struct {
	StatusCode    int    `json:"statusCode"`
	StatusString  string `json:"statusString"`
	SubStatusCode string `json:"subStatusCode"`
	ErrorMsg      string `json:"errorMsg"`
}
