package ojtest

// Data is the fixture content served by the fake OJ. Keys are ids as strings.
type Data struct {
	Courses []map[string]interface{}
	// CoursesRaw, when set, replaces the course list body verbatim.
	CoursesRaw      string
	Homeworks       map[string][]map[string]interface{}
	HomeworkDetails map[string]map[string]interface{}
	FailingHomework map[string]bool
	Problems        map[string][]map[string]interface{}
	ProblemInfo     map[string]map[string]interface{}
	Records         map[string][]map[string]interface{}
	UploadRecordID  string
	// Grading holds the successive raw bodies of the result endpoint; the
	// last one repeats.
	Grading []string
}

// DefaultData serves one course with two homework and two problems.
func DefaultData() Data {
	return Data{
		Courses: []map[string]interface{}{
			{"course_id": 7, "course_name": "数据结构与算法", "description": "DSAA"},
		},
		Homeworks: map[string][]map[string]interface{}{
			"7": {
				{"homeworkId": 102, "homeworkName": "Lab 2", "nextDate": "2031-03-10 23:59:59", "problemsCount": 2, "state": 2},
				{"homeworkId": 101, "homeworkName": "Lab 1", "nextDate": "2031-03-01 23:59:59", "problemsCount": 1, "state": 2},
				{"homeworkId": 100, "homeworkName": "Warmup", "problemsCount": 1, "state": 4},
			},
		},
		HomeworkDetails: map[string]map[string]interface{}{
			"100": {"currentScore": 100, "totalScore": 100, "attemptRate": 1},
			"101": {"currentScore": 50, "totalScore": 200, "attemptRate": 0.5},
			"102": {"currentScore": 0, "totalScore": 200, "attemptRate": 0},
		},
		FailingHomework: map[string]bool{},
		Problems: map[string][]map[string]interface{}{
			"101": {
				{"problemId": 1001, "problemName": "A+B"},
				{"problemId": "1002", "problemName": "Sorting / Merge"},
			},
		},
		ProblemInfo: map[string]map[string]interface{}{
			"1001": {
				"difficulty":  1,
				"timeLimit":   map[string]interface{}{"Java": 1000, "C++": 500},
				"memoryLimit": map[string]interface{}{"Java": 256, "C++": 128},
				"ioMode":      0,
				"problemType": "Programming",
				"publicTags":  []string{"math"},
				"content":     "<p>Compute <b>a+b</b>.</p><p>1 &lt;= a, b &lt;= 10</p>",
			},
			"1002": {
				"difficulty":  3,
				"timeLimit":   map[string]interface{}{"Java": 2000},
				"memoryLimit": map[string]interface{}{"Java": 512},
				"ioMode":      1,
				"content":     "<div>Sort the input.</div>",
			},
		},
		Records: map[string][]map[string]interface{}{
			"1001": {
				{
					"recordId": 9001, "resultState": "WA", "score": 50, "submissionTime": "2031-02-20 10:00:00",
					"codeList": []map[string]interface{}{{"fileName": "Main.java", "code": "class Main {}\n"}},
				},
			},
		},
		UploadRecordID: "42",
		Grading: []string{
			`{"resultState":"JG","score":0,"resultList":[]}`,
			`{"resultState":"JG","score":0,"resultList":[{"state":"AC"}]}`,
			`{"resultState":"AC","score":100,"resultList":[{"state":"AC","time":12,"memory":20},{"state":"AC","time":15,"memory":21}]}`,
		},
	}
}
