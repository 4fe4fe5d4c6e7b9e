/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: templates.go
Description: HTML template for the coverage comparison chart. Renders one Chart.js line
per target, edges discovered over time.
*/

package reporting

// chartTemplate receives a chartPage; Datasets is JSON-encoded by html/template
// inside the script block
const chartTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - crashprobe</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            margin: 0;
            color: #333;
        }

        .container {
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
        }

        .card {
            background: rgba(255, 255, 255, 0.95);
            border-radius: 20px;
            padding: 30px;
            margin-bottom: 30px;
            box-shadow: 0 8px 32px rgba(0, 0, 0, 0.1);
        }

        .card h1 {
            color: #4a5568;
            font-size: 2rem;
            margin: 0 0 10px 0;
        }

        .card p {
            color: #718096;
            margin: 0;
        }

        .chart-wrapper {
            position: relative;
            height: 560px;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="card">
            <h1>{{.Title}}</h1>
            <p>Generated {{.GeneratedAt}}</p>
        </div>
        <div class="card">
            <div class="chart-wrapper">
                <canvas id="coverageChart"></canvas>
            </div>
        </div>
    </div>

    <script>
        Chart.defaults.font.family = "'Segoe UI', Tahoma, Geneva, Verdana, sans-serif";
        Chart.defaults.color = '#4a5568';

        new Chart(document.getElementById('coverageChart'), {
            type: 'scatter',
            data: { datasets: {{.Datasets}} },
            options: {
                maintainAspectRatio: false,
                scales: {
                    x: { title: { display: true, text: 'Time (seconds)' } },
                    y: { title: { display: true, text: 'Edges Discovered' }, beginAtZero: true }
                },
                plugins: { legend: { position: 'right' } }
            }
        });
    </script>
</body>
</html>`
