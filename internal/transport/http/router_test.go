package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"academy-of-heroes/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, env *testEnv, method, path, token string, body any) (int, apiResult) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestRoutesEnforceRoles(t *testing.T) {
	env := newTestEnv(t)
	st := env.addStudent(t, domain.ClassHealer)

	status, _ := call(t, env, http.MethodGet, "/teacher/students", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, env, http.MethodGet, "/teacher/students", env.studentToken(t, st.ID), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, res := call(t, env, http.MethodGet, "/teacher/students", env.teacherToken(t), nil)
	assert.Equal(t, http.StatusOK, status)
	var roster []domain.Student
	require.NoError(t, json.Unmarshal(res.Data, &roster))
	assert.Len(t, roster, 1)
}

func TestTeacherRunsBattleAndStudentCasts(t *testing.T) {
	env := newTestEnv(t)
	teacher := env.teacherToken(t)

	status, res := call(t, env, http.MethodPost, "/teacher/students", teacher, map[string]string{
		"studentName": "Bo", "class": "Healer",
	})
	require.Equal(t, http.StatusCreated, status, res.Error)
	var st domain.Student
	require.NoError(t, json.Unmarshal(res.Data, &st))

	// teacher impersonates the student
	status, res = call(t, env, http.MethodPost, "/teacher/students/"+st.ID+"/impersonate", teacher, nil)
	require.Equal(t, http.StatusOK, status)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &tok))
	student := tok.Token

	status, res = call(t, env, http.MethodPost, "/teacher/battles/b1/start", teacher, nil)
	require.Equal(t, http.StatusOK, status, res.Error)
	status, _ = call(t, env, http.MethodPost, "/me/live/join", student, nil)
	require.Equal(t, http.StatusOK, status)

	power := map[string]string{"power": domain.PowerNaturesGuidance, "battleId": "b1"}
	status, res = call(t, env, http.MethodPost, "/me/live/powers", student, power)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Powers can only be used while a question is open.", res.Error)

	status, _ = call(t, env, http.MethodPost, "/teacher/live/round", teacher, nil)
	require.Equal(t, http.StatusOK, status)
	status, res = call(t, env, http.MethodPost, "/me/live/powers", student, power)
	require.Equal(t, http.StatusOK, status, res.Error)
	assert.True(t, res.Success)

	status, res = call(t, env, http.MethodPost, "/me/live/powers", student, map[string]string{"power": "Meteor", "battleId": "b1"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "That power does not exist.", res.Error)

	status, res = call(t, env, http.MethodGet, "/me/", student, nil)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		Student domain.Student `json:"student"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &me))
	assert.Equal(t, me.Student.MaxMP-3, me.Student.MP)
}

func TestMissingLiveBattleIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, res := call(t, env, http.MethodGet, "/teacher/live", env.teacherToken(t), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "There is no active battle.", res.Error)

	status, res = call(t, env, http.MethodPost, "/teacher/battles/draft", env.teacherToken(t), map[string]string{"topic": "Volcanoes"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Content generation is turned off.", res.Error)
}

func TestAvatarUploadAndSignedDownload(t *testing.T) {
	env := newTestEnv(t)
	st := env.addStudent(t, domain.ClassMage)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("avatar", "hero.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("not-really-a-png"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPut, env.server.URL+"/me/avatar", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.studentToken(t, st.ID))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	link, err := env.services.Students.AvatarURL(context.Background(), "t1", st.ID)
	require.NoError(t, err)

	resp, err = http.Get(env.server.URL + link)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not-really-a-png", string(data))

	resp, err = http.Get(env.server.URL + "/files?token=forged")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStudentViewHidesOpenAnswers(t *testing.T) {
	state := domain.LiveBattleState{
		Status: domain.StatusInProgress,
		Responses: map[string]domain.Response{
			"s1": {AnswerIndex: 2, Correct: true, SubmittedAt: time.Unix(10, 0)},
			"s2": {AnswerIndex: 0, Correct: false},
		},
	}
	view := studentView(state, "s1")
	assert.Equal(t, domain.Response{AnswerIndex: 2, SubmittedAt: time.Unix(10, 0)}, view.Responses["s1"])
	assert.Equal(t, -1, view.Responses["s2"].AnswerIndex)
	assert.True(t, state.Responses["s1"].Correct, "original state untouched")

	state.Status = domain.StatusShowingResults
	assert.True(t, studentView(state, "s1").Responses["s1"].Correct)
}
